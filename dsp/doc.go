// SPDX-License-Identifier: EPL-2.0

// Package dsp holds the effect processors that run on buses and voices.
//
// Effects work on deinterleaved float32 planes, one slice per channel. Hosts
// never talk to an Effect directly: they wrap it in an Instance, which keeps
// two parameter sets. SetParameter writes the staged set, UpdateParameters
// publishes it, and the render side picks the published set up at the start
// of its next Process call. A half-written parameter change is never heard.
//
// Built-in effects are a bandpass filter, an RBJ biquad, a compressor, a
// feedback delay and a partitioned-convolution IR reverb. Applications add
// their own through a Registry.
package dsp
