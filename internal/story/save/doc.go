// Package save encodes engine state into a tamper-evident binary bound to
// the script that produced it.
//
// Layout, all integers little endian:
//
//	"VNSV" | u16 format version | 32-byte script id | u32 payload length |
//	canonical JSON payload | SHA-256 of everything before it
//
// Load checks the magic, then the version, then the checksum, then the
// script id, and only then decodes the payload.
//
// A save can additionally be sealed with an HMAC from a Keyring, which
// detects deliberate tampering that the plain checksum cannot.
package save
