// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.

// Package version holds the current version tag of the SDK.
package version

// Tag specifies the current release tag. It needs to be manually
// updated before tagging a release.
const Tag = "v0.3.0"
