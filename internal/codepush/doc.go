// Package codepush implements app and deployment management and the update
// distribution protocol: releases are appended to a deployment history and
// clients poll with their deployment key and binary version to learn about
// the newest applicable package.
package codepush
