// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package block provides the dictionary carry-over helper shared by the
// streaming DEFLATE-family formats: the trailing window of one block
// primes the compressor for the next, preserving compression ratio across
// block boundaries.
//
// A Go slice aliasing another slice's backing array keeps that array
// alive for as long as the alias is reachable, so the carried-over window
// is a plain zero-copy re-slice, with no reference counting required.
package block

// DictionarySize is the DEFLATE sliding-window size: the amount of
// trailing data from one block that primes the dictionary of the next.
const DictionarySize = 32 * 1024

// NextDictionary returns a zero-copy view of the trailing DictionarySize
// bytes of data, suitable for priming the block that follows. It returns
// nil if data is shorter than DictionarySize or this is the last block.
func NextDictionary(data []byte, isLast bool) []byte {
	if isLast || len(data) < DictionarySize {
		return nil
	}
	return data[len(data)-DictionarySize:]
}
