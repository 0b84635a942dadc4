// Copyright 2023 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// blediagnose monitors a single beacon and shows every advertisement it
// sends, raw and decoded, plus signal statistics. Use it to figure out
// why a device does not show up in the exporter: wrong address, out of
// range, or broken payloads.
//
//	blediagnose -duration 30s A4:C1:38:B6:36:7A
//	blediagnose -json -quiet A4:C1:38:B6:36:7A
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/united-manufacturing-hub/bleconnect/pkg/bthome"
	"github.com/united-manufacturing-hub/umh-utils/logger"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"tinygo.org/x/bluetooth"
)

var bthomeServiceUUID = bluetooth.New16BitUUID(0xFCD2)

type parseResult struct {
	Success      bool               `json:"success"`
	ServiceUUID  string             `json:"service_uuid,omitempty"`
	Error        string             `json:"error,omitempty"`
	Measurements map[string]float64 `json:"measurements,omitempty"`
}

type advertisement struct {
	Timestamp        string            `json:"timestamp"`
	RSSI             int16             `json:"rssi"`
	ServiceData      map[string]string `json:"service_data"`
	ManufacturerData map[string]string `json:"manufacturer_data"`
	Parse            parseResult       `json:"parse_result"`
}

type statistics struct {
	TotalAdvertisements int      `json:"total_advertisements"`
	SuccessfulParses    int      `json:"successful_parses"`
	FailedParses        int      `json:"failed_parses"`
	ParseSuccessRate    float64  `json:"parse_success_rate"`
	AverageRSSI         float64  `json:"average_rssi"`
	MinRSSI             float64  `json:"min_rssi"`
	MaxRSSI             float64  `json:"max_rssi"`
	RSSIStdDev          float64  `json:"rssi_std_dev"`
	ServiceUUIDsSeen    []string `json:"service_uuids_seen"`
}

type report struct {
	MACAddress     string          `json:"mac_address"`
	ScanStart      string          `json:"scan_start,omitempty"`
	ScanEnd        string          `json:"scan_end,omitempty"`
	Advertisements []advertisement `json:"advertisements"`
	Statistics     statistics      `json:"statistics"`
}

func main() {
	duration := flag.Duration("duration", 0, "scan duration, 0 scans until interrupted")
	saveJSON := flag.Bool("json", false, "save the captured advertisements to a JSON report")
	outFile := flag.String("out", "", "report filename, implies -json (default: auto-generated)")
	quiet := flag.Bool("quiet", false, "suppress per-advertisement console output")
	flag.Parse()

	_ = logger.New("DEVELOPMENT")

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <mac-address>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}
	targetMAC := strings.ToUpper(flag.Arg(0))

	advertisements := capture(targetMAC, *duration, *quiet)
	stats := computeStatistics(advertisements)

	if !*quiet {
		printStatistics(stats)
	}

	if *saveJSON || *outFile != "" {
		path, err := saveReport(targetMAC, advertisements, stats, *outFile)
		if err != nil {
			zap.S().Fatalf("Failed to save report: %s", err.Error())
		}
		fmt.Printf("\nResults saved to: %s\n", path)
	}
}

// capture listens on the default adapter and records everything the
// target device broadcasts until the duration elapses or the process
// is interrupted.
func capture(targetMAC string, duration time.Duration, quiet bool) []advertisement {
	adapter := bluetooth.DefaultAdapter
	err := adapter.Enable()
	if err != nil {
		zap.S().Fatalf("Failed to enable the bluetooth adapter: %s", err.Error())
	}

	fmt.Printf("Monitoring MAC: %s\n", targetMAC)
	if duration > 0 {
		fmt.Printf("Duration: %s\n", duration)
	} else {
		fmt.Println("Duration: continuous (Ctrl+C to stop)")
	}
	fmt.Println(strings.Repeat("=", 60))

	interrupted := make(chan os.Signal, 1)
	signal.Notify(interrupted, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		if duration > 0 {
			select {
			case <-time.After(duration):
			case <-interrupted:
			}
		} else {
			<-interrupted
		}
		_ = adapter.StopScan()
	}()

	var (
		mu             sync.Mutex
		advertisements []advertisement
	)
	err = adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		if !strings.EqualFold(result.Address.String(), targetMAC) {
			return
		}
		ad := inspect(result)
		mu.Lock()
		advertisements = append(advertisements, ad)
		mu.Unlock()
		if !quiet {
			printAdvertisement(ad)
		}
	})
	if err != nil {
		zap.S().Fatalf("Scan failed: %s", err.Error())
	}

	mu.Lock()
	defer mu.Unlock()
	return advertisements
}

// inspect captures one advertisement and tries to decode each service
// data entry as a measurement payload, stopping at the first success.
func inspect(result bluetooth.ScanResult) advertisement {
	ad := advertisement{
		Timestamp:        time.Now().Format("2006-01-02T15:04:05.000"),
		RSSI:             result.RSSI,
		ServiceData:      make(map[string]string),
		ManufacturerData: make(map[string]string),
		Parse:            parseResult{Success: false},
	}

	for _, sd := range result.ServiceData() {
		uuid := sd.UUID.String()
		ad.ServiceData[uuid] = fmt.Sprintf("%x", sd.Data)

		if ad.Parse.Success || len(sd.Data) < 1 {
			continue
		}
		reading, err := bthome.Decode(sd.Data[1:])
		if err != nil {
			ad.Parse = parseResult{Success: false, ServiceUUID: uuid, Error: err.Error()}
			continue
		}
		ad.Parse = parseResult{Success: true, ServiceUUID: uuid, Measurements: measurementsOf(reading)}
	}

	for _, md := range result.ManufacturerData() {
		ad.ManufacturerData[strconv.Itoa(int(md.CompanyID))] = fmt.Sprintf("%x", md.Data)
	}
	return ad
}

func measurementsOf(reading bthome.Reading) map[string]float64 {
	measurements := make(map[string]float64)
	if reading.Temperature != nil {
		measurements["temperature"] = *reading.Temperature
	}
	if reading.Humidity != nil {
		measurements["humidity"] = *reading.Humidity
	}
	if reading.Battery != nil {
		measurements["battery"] = *reading.Battery
	}
	if reading.Voltage != nil {
		measurements["voltage"] = *reading.Voltage
	}
	return measurements
}

func printAdvertisement(ad advertisement) {
	fmt.Printf("\n[%s] RSSI: %d dBm\n", ad.Timestamp, ad.RSSI)
	for uuid, hexData := range ad.ServiceData {
		fmt.Printf("  Service UUID: %s\n", uuid)
		fmt.Printf("    Data (hex): %s\n", hexData)
	}
	for companyID, hexData := range ad.ManufacturerData {
		fmt.Printf("  Manufacturer ID: %s\n", companyID)
		fmt.Printf("    Data (hex): %s\n", hexData)
	}
	if ad.Parse.Success {
		fmt.Printf("    Decode: SUCCESS (from %s)\n", ad.Parse.ServiceUUID)
		for key, value := range ad.Parse.Measurements {
			fmt.Printf("      - %s: %g\n", key, value)
		}
	} else if ad.Parse.Error != "" {
		fmt.Printf("    Decode: FAILED, %s\n", ad.Parse.Error)
	}
}

func computeStatistics(advertisements []advertisement) statistics {
	stats := statistics{
		TotalAdvertisements: len(advertisements),
		ServiceUUIDsSeen:    []string{},
	}
	if len(advertisements) == 0 {
		return stats
	}

	rssis := make([]float64, 0, len(advertisements))
	uuids := make(map[string]bool)
	for _, ad := range advertisements {
		rssis = append(rssis, float64(ad.RSSI))
		if ad.Parse.Success {
			stats.SuccessfulParses++
		}
		for uuid := range ad.ServiceData {
			uuids[uuid] = true
		}
	}
	stats.FailedParses = stats.TotalAdvertisements - stats.SuccessfulParses
	stats.ParseSuccessRate = math.Round(float64(stats.SuccessfulParses)/float64(stats.TotalAdvertisements)*100) / 100
	stats.AverageRSSI = math.Round(stat.Mean(rssis, nil)*10) / 10
	stats.MinRSSI = floats.Min(rssis)
	stats.MaxRSSI = floats.Max(rssis)
	if len(rssis) > 1 {
		stats.RSSIStdDev = math.Round(stat.StdDev(rssis, nil)*10) / 10
	}

	for uuid := range uuids {
		stats.ServiceUUIDsSeen = append(stats.ServiceUUIDsSeen, uuid)
	}
	sort.Strings(stats.ServiceUUIDsSeen)
	return stats
}

func printStatistics(stats statistics) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("STATISTICS")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Total advertisements: %d\n", stats.TotalAdvertisements)
	fmt.Printf("Successful parses: %d\n", stats.SuccessfulParses)
	fmt.Printf("Failed parses: %d\n", stats.FailedParses)
	fmt.Printf("Parse success rate: %.1f%%\n", stats.ParseSuccessRate*100)
	fmt.Printf("Average RSSI: %.1f dBm (min %.0f, max %.0f, stddev %.1f)\n",
		stats.AverageRSSI, stats.MinRSSI, stats.MaxRSSI, stats.RSSIStdDev)
	if len(stats.ServiceUUIDsSeen) > 0 {
		fmt.Println("Service UUIDs seen:")
		for _, uuid := range stats.ServiceUUIDsSeen {
			fmt.Printf("  - %s\n", uuid)
		}
	}
}

// defaultReportName builds the report filename from the target address
// with the colons stripped and the current unix time.
func defaultReportName(targetMAC string) string {
	sanitized := strings.ReplaceAll(targetMAC, ":", "")
	return fmt.Sprintf("ble_diagnostics_%s_%d.json", sanitized, time.Now().Unix())
}

func saveReport(targetMAC string, advertisements []advertisement, stats statistics, filename string) (string, error) {
	if filename == "" {
		filename = defaultReportName(targetMAC)
	}

	out := report{
		MACAddress:     targetMAC,
		Advertisements: advertisements,
		Statistics:     stats,
	}
	if len(advertisements) > 0 {
		out.ScanStart = advertisements[0].Timestamp
		out.ScanEnd = advertisements[len(advertisements)-1].Timestamp
	}

	payload, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", err
	}
	err = os.WriteFile(filename, payload, 0o644)
	if err != nil {
		return "", err
	}
	return filename, nil
}
