// Package publish uploads a production build to S3-compatible object
// storage.
//
// Every file under the output directory becomes one object under
// s3://bucket/prefix/. Objects carry a Content-Type and the same
// Cache-Control policy the preview server uses, so hashed assets are
// cached forever and index.html is always revalidated.
package publish
