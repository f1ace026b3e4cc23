package engine

import (
	"fmt"

	"github.com/coreos/go-semver/semver"
)

// Export names of the guest ABI. A guest module must export all of them
// plus its linear memory.
const (
	ExportABIVersion = "bridge_abi_version"
	ExportAlloc      = "bridge_alloc"
	ExportFree       = "bridge_free"
	ExportNewText    = "bridge_new_text"
	ExportNewBytes   = "bridge_new_bytes"
	ExportIncRef     = "bridge_incref"
	ExportDecRef     = "bridge_decref"
	ExportLookupType = "bridge_lookup_type"
	ExportIsInstance = "bridge_is_instance"
	ExportTextUTF8   = "bridge_text_utf8"
	ExportBytesData  = "bridge_bytes_data"
	ExportDecodeText = "bridge_decode_text"
	ExportExcFetch   = "bridge_exc_fetch"
	ExportExcRaise   = "bridge_exc_raise"
)

// requiredExports is checked during the attachment handshake; a guest
// missing any of them is rejected before the first object call.
var requiredExports = []string{
	ExportABIVersion,
	ExportAlloc,
	ExportFree,
	ExportNewText,
	ExportNewBytes,
	ExportIncRef,
	ExportDecRef,
	ExportLookupType,
	ExportIsInstance,
	ExportTextUTF8,
	ExportBytesData,
	ExportDecodeText,
	ExportExcFetch,
	ExportExcRaise,
}

// Guest functions that hand back byte views fill a pair block: two
// little-endian u32 words, pointer then length. The exception block is two
// consecutive pairs, category then message.
const (
	pairLenOff   = 4
	pairSize     = 8
	excBlockSize = 16
)

// PackVersion folds a semver triple into the u32 a guest reports from
// bridge_abi_version: major in the high half, minor and patch in one byte
// each.
func PackVersion(v semver.Version) uint32 {
	return uint32(v.Major&0xffff)<<16 | uint32(v.Minor&0xff)<<8 | uint32(v.Patch&0xff)
}

// UnpackVersion is the inverse of PackVersion.
func UnpackVersion(packed uint32) string {
	return fmt.Sprintf("%d.%d.%d", packed>>16, (packed>>8)&0xff, packed&0xff)
}
