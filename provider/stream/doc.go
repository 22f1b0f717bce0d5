// Package stream implements the Redis Streams job provider. Triggers
// persist jobs like the local provider, but deliveries are appended to a
// stream and consumed by a worker pool through a consumer group instead of
// being POSTed over HTTP. Retries are appended to the same stream.
package stream
