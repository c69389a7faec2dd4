/*
Copyright Attestra Labs. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"os"
	"testing"
)

// Correct behaviour is for main to print help and finish with exit code 0 when no
// arguments are given. The *testing.T argument is only there so that this test gets
// picked up by the framework.
func TestWithoutUserArgs(t *testing.T) { //nolint: unparam // see above
	setUpArgs()
	main()
}

// Strips out the extra args that the unit test framework adds.
// This allows main() to execute as if it was called directly from the command line.
func setUpArgs() {
	os.Args = os.Args[:1]
}
