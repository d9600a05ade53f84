//go:build e2e

// Package e2e provides end-to-end browser tests using Playwright.
// These tests require a running hub server and browser.
//
// Run with: go test -tags=e2e ./internal/e2e/...
//
// Prerequisites:
//   - Install Playwright browsers: go run github.com/playwright-community/playwright-go/cmd/playwright install chromium
//   - Running hub server (default: http://localhost:8080) with a hub root
//     whose handlers/auth/users config has at least one user matching
//     E2E_USERNAME/E2E_PASSWORD (default admin/adminpassword)
package e2e
