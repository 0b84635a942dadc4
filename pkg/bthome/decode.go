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

// Package bthome decodes the BTHome measurement encoding broadcast by
// low-power BLE sensor beacons. A payload is a flat sequence of fields,
// each a one-byte object ID followed by a fixed number of value bytes
// determined by that ID. There is no length prefix and no checksum.
package bthome

import (
	"encoding/binary"
	"fmt"
)

// Object IDs carried by the beacons we support.
const (
	ObjectIDTemperature = 0x02 // sint16, little-endian, 0.01 °C
	ObjectIDHumidity    = 0x03 // uint16, little-endian, 0.01 %
	ObjectIDBattery     = 0x0A // uint8, 1 %
	ObjectIDVoltage     = 0x0C // uint16, little-endian, 0.001 V
)

// Failure reasons reported by Decode.
const (
	ReasonEmptyPayload    = "empty-payload"
	ReasonTruncated       = "truncated"
	ReasonUnknownObjectID = "unknown-unskippable-tag"
	ReasonOutOfRange      = "out-of-range"
)

// skipWidths lists the object IDs we do not decode but whose value width
// is known, so the field can be skipped and the walk resynchronized.
// An object ID in neither this table nor the decoded set makes the rest
// of the payload unreadable.
var skipWidths = map[byte]int{
	0x00: 1, // packet id
	0x01: 1,
	0x05: 1,
	0x06: 1,
	0x07: 1,
	0x08: 1,
	0x09: 1,
	0x0B: 1,
	0x0D: 1,
	0x04: 2,
	0x0E: 2,
	0x0F: 2,
}

// DecodeError reports why a payload could not be decoded. Reason is one
// of the Reason constants; ObjectID and Offset locate the offending
// field where applicable.
type DecodeError struct {
	Reason   string
	ObjectID byte
	Offset   int
}

func (e *DecodeError) Error() string {
	switch e.Reason {
	case ReasonEmptyPayload:
		return "no sensor fields in payload"
	case ReasonTruncated:
		return fmt.Sprintf("payload truncated in field 0x%02X at offset %d", e.ObjectID, e.Offset)
	case ReasonUnknownObjectID:
		return fmt.Sprintf("unknown object id 0x%02X at offset %d, cannot skip", e.ObjectID, e.Offset)
	case ReasonOutOfRange:
		return fmt.Sprintf("value of field 0x%02X at offset %d out of range", e.ObjectID, e.Offset)
	}
	return fmt.Sprintf("cannot decode payload (%s)", e.Reason)
}

// FailureReason extracts the decode failure reason from err, or ""
// when err did not come from Decode.
func FailureReason(err error) string {
	if derr, ok := err.(*DecodeError); ok {
		return derr.Reason
	}
	return ""
}

// Reading is the set of measurements decoded from one payload. A nil
// field was not present. Voltage is an internal measurement used to
// derive a battery percentage and is not exported to scrapers.
type Reading struct {
	Temperature *float64
	Humidity    *float64
	Battery     *float64
	Voltage     *float64
}

// Empty reports whether the reading carries no measurements.
func (r Reading) Empty() bool {
	return r.Temperature == nil && r.Humidity == nil && r.Battery == nil && r.Voltage == nil
}

// Merge overlays the measurements of o onto r. Fields present in o win;
// fields absent from o keep their value in r.
func (r *Reading) Merge(o Reading) {
	if o.Temperature != nil {
		r.Temperature = o.Temperature
	}
	if o.Humidity != nil {
		r.Humidity = o.Humidity
	}
	if o.Battery != nil {
		r.Battery = o.Battery
	}
	if o.Voltage != nil {
		r.Voltage = o.Voltage
	}
}

// Decode walks payload from offset 0 and accumulates every recognized
// field into a Reading. A repeated object ID overwrites the earlier
// value. Decode never clamps: a scaled value outside its plausible range
// is a *DecodeError with ReasonOutOfRange. Payloads that are empty,
// truncated mid-field, carry an unskippable unknown object ID, or yield
// no recognized field at all also fail with the matching reason.
func Decode(payload []byte) (Reading, error) {
	if len(payload) == 0 {
		return Reading{}, &DecodeError{Reason: ReasonEmptyPayload}
	}

	var r Reading
	fields := 0
	idx := 0
	for idx < len(payload) {
		objectID := payload[idx]
		idx++

		switch objectID {
		case ObjectIDTemperature:
			if idx+2 > len(payload) {
				return Reading{}, &DecodeError{Reason: ReasonTruncated, ObjectID: objectID, Offset: idx}
			}
			v := float64(int16(binary.LittleEndian.Uint16(payload[idx:idx+2]))) * 0.01
			if v < -273.15 {
				return Reading{}, &DecodeError{Reason: ReasonOutOfRange, ObjectID: objectID, Offset: idx}
			}
			r.Temperature = &v
			idx += 2
			fields++

		case ObjectIDHumidity:
			if idx+2 > len(payload) {
				return Reading{}, &DecodeError{Reason: ReasonTruncated, ObjectID: objectID, Offset: idx}
			}
			v := float64(binary.LittleEndian.Uint16(payload[idx:idx+2])) * 0.01
			if v > 100 {
				return Reading{}, &DecodeError{Reason: ReasonOutOfRange, ObjectID: objectID, Offset: idx}
			}
			r.Humidity = &v
			idx += 2
			fields++

		case ObjectIDBattery:
			if idx+1 > len(payload) {
				return Reading{}, &DecodeError{Reason: ReasonTruncated, ObjectID: objectID, Offset: idx}
			}
			v := float64(payload[idx])
			if v > 100 {
				return Reading{}, &DecodeError{Reason: ReasonOutOfRange, ObjectID: objectID, Offset: idx}
			}
			r.Battery = &v
			idx++
			fields++

		case ObjectIDVoltage:
			if idx+2 > len(payload) {
				return Reading{}, &DecodeError{Reason: ReasonTruncated, ObjectID: objectID, Offset: idx}
			}
			v := float64(binary.LittleEndian.Uint16(payload[idx:idx+2])) * 0.001
			r.Voltage = &v
			idx += 2
			fields++

		default:
			width, ok := skipWidths[objectID]
			if !ok {
				return Reading{}, &DecodeError{Reason: ReasonUnknownObjectID, ObjectID: objectID, Offset: idx - 1}
			}
			if idx+width > len(payload) {
				return Reading{}, &DecodeError{Reason: ReasonTruncated, ObjectID: objectID, Offset: idx}
			}
			idx += width
		}
	}

	if fields == 0 {
		return Reading{}, &DecodeError{Reason: ReasonEmptyPayload}
	}
	return r, nil
}

// BatteryFromVoltage estimates a battery percentage from the supply
// voltage of a CR2032-powered beacon: 3.0 V reads as full, 2.0 V as
// empty, linear in between and clamped to [0, 100].
func BatteryFromVoltage(volts float64) float64 {
	pct := (volts*1000 - 2000) / 10
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
