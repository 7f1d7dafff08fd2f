// Package mcu talks to the motor and sensor microcontroller.
//
// The link is a request/response protocol. Every exchange starts with a
// 6 byte command header followed by up to 255 payload bytes:
//
//	[op][command][payload len][crc16 lo][crc16 hi][crc7 of the 5 bytes before]
//
// and is answered with a 5 byte response header plus payload:
//
//	[status][payload len][crc16 lo][crc16 hi][crc7 of the 4 bytes before]
//
// CRC16 is CCITT (poly 0x1021, init 0xFFFF) over the payload. CRC7 is the
// table driven MMC variant seeded with 0xFF.
//
// Busy responses are re-read until Transport.BusyTimeout expires. Pending
// responses are polled with a GetResult operation. A command integrity
// error makes the whole command be resent.
//
// Control wraps the transport with typed commands. StatusUpdater batches
// periodic status reads into a single TLV stream.
package mcu
