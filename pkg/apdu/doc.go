// Package apdu delimits an IEC 60870-5-104 byte stream into APDUs and tags
// each one with its frame format.
//
// Every APDU on the wire starts with the start octet 0x68 followed by a one
// octet length L counting the octets that follow it:
//
//	| 0x68 | L | control field + ASDU (L octets) |
//
// The first control octet selects the format: I (numbered information
// transfer), S (supervisory acknowledgment) or U (unnumbered control).
// This package does not interpret sequence numbers or ASDU contents.
package apdu
