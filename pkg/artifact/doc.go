// Package artifact fetches the companion server binary that is deployed
// to a device before remote control starts.
//
// A Source opens the artifact as a stream with its declared size (-1
// when the size is not known up front). Sources exist for local files,
// HTTP(S) URLs and S3 objects; ParseSource picks one from a location
// string:
//
//	/opt/webadb/server.jar           local file
//	file:///opt/webadb/server.jar    local file
//	https://example.com/server.jar   HTTP GET
//	s3://bucket/path/server.jar      S3 GetObject
//
// Digest verification uses BLAKE3. NewVerifyingReader checks the digest
// as the stream is consumed, so a corrupted download fails at EOF
// without buffering the whole artifact.
package artifact
