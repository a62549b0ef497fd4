// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MPPS Contributors

//go:build integration

// Package integration provides end-to-end tests that run workers as real
// operating system processes.
package integration

import (
	"testing"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
)

func TestIntegration(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Integration Suite")
}
