// PatchLink Core
// Copyright (c) 2026 The PatchLink Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of PatchLink Core.
//
// PatchLink Core is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// PatchLink Core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with PatchLink Core.  If not, see <http://www.gnu.org/licenses/>.

package protocol

// CRC-16/CCITT-FALSE, the variant the device firmware computes over
// transferred files: polynomial 0x1021, initial register 0xFFFF, MSB
// first, no reflection, no final XOR. CRC16([]byte("123456789")) == 0x29B1.
const (
	crc16Poly uint16 = 0x1021
	crc16Init uint16 = 0xFFFF
)

// CRC16 computes the checksum of data.
func CRC16(data []byte) uint16 {
	return CRC16Update(crc16Init, data)
}

// CRC16Init returns the initial register value, for callers accumulating a
// running CRC across chunks with CRC16Update.
func CRC16Init() uint16 {
	return crc16Init
}

// CRC16Update feeds data into a running CRC.
func CRC16Update(crc uint16, data []byte) uint16 {
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ crc16Poly
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
