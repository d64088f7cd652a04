package protocol

const (
	WSSubprotocolV1 = "v1.json.storesync"
)

// Compression is requested by the client in the subscribe URL. The server
// marks every frame with the scheme it actually used.
type Compression string

const (
	CompressionNone Compression = "None"
	CompressionGzip Compression = "Gzip"
)

// Frame scheme bytes.
const (
	frameUncompressed byte = 0
	frameGzip         byte = 2
)
