package models

// FrameFile describes one frame file discovered on disk before it is decoded
type FrameFile struct {
	// Index is the position of this frame in the energy sequence
	Index int

	// Filename is the base name of the frame file
	Filename string

	// Path is the full path used to open the file
	Path string

	// Number is the numeric part of the filename used for ordering
	Number int
}
