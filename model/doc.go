// Package model defines the core value types shared across lexgo packages.
package model
