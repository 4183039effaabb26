// Package cobs provides an incremental decoder for Consistent Overhead Byte
// Stuffing (COBS).  COBS removes every 0x00 from a payload so that a single
// 0x00 can delimit packets on a byte stream.  The decoder consumes one byte at
// a time, so a packet can be decoded from input that arrives in arbitrary
// pieces.
package cobs
