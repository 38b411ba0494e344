// SPDX-License-Identifier: EPL-2.0

// Command atomix renders and plays mixes of audio files through the engine.
package main

func main() {
	Execute()
}
