package api

// Status mapping used by the handlers:
//   compile errors and undecodable records  -> InvalidArgument
//   oversized batches                       -> InvalidArgument
//   deadline or cancellation during routing -> DeadlineExceeded / Canceled
// Authentication failures are mapped by the auth interceptor.
