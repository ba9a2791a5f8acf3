// Package vdpservice binds the vdp capability interfaces to the vendor
// service library (vdpService.dll) on windows/amd64. The library hands out
// C function tables through QueryInterface; each table is wrapped in a Go
// type implementing the matching vdp interface.
//
// Go values never cross into C memory. The notification sink is a single
// package-level table of callbacks, and the userData the library stores per
// channel object is an ID into a handle table. Variants filled by GetParam
// live in Go memory until VariantClear releases their host storage.
package vdpservice

import "errors"

// DefaultLibrary is the file name of the service library.
const DefaultLibrary = "vdpService.dll"

// ErrUnsupported is returned on platforms without the service library.
var ErrUnsupported = errors.New("vdpservice: service library requires windows/amd64")
