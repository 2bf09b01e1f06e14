// Package types provides core types shared across campaignflow.
// This package has ZERO dependencies on other campaignflow packages to avoid
// circular imports. All other packages import their common types from here.
package types
