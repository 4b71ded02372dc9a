// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import "github.com/neurogears/antsct-prep/cmd"

func main() {
	cmd.Execute()
}
