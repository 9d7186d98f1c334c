package audioio

// Compile-time assertion that PortAudioSource satisfies Source.
var _ Source = (*PortAudioSource)(nil)
