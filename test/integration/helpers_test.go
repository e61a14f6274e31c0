// Package integration holds black-box tests against a running sheetroll
// server. Start one with `sheetroll serve` and point SHEETROLL_URL and
// SHEETROLL_GRPC_ENDPOINT at it; tests are skipped when it is unreachable.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// testServer holds the base URL of a running server instance for tests.
var testServer string

func init() {
	testServer = os.Getenv("SHEETROLL_URL")
	if testServer == "" {
		testServer = "http://localhost:8787"
	}
	// Ensure the URL has a scheme.
	if !strings.HasPrefix(testServer, "http://") && !strings.HasPrefix(testServer, "https://") {
		testServer = "http://" + testServer
	}
}

// grpcEndpoint returns the gRPC endpoint address (host:port).
func grpcEndpoint() string {
	if ep := os.Getenv("SHEETROLL_GRPC_ENDPOINT"); ep != "" {
		return ep
	}
	return "localhost:8788"
}

var client = &http.Client{Timeout: 10 * time.Second}

// requireServer skips the test when no server answers at testServer.
func requireServer(t *testing.T) {
	t.Helper()
	resp, err := client.Get(apiURL("sheets"))
	if err != nil {
		t.Skipf("sheetroll server not reachable at %s: %v", testServer, err)
	}
	resp.Body.Close()
}

// apiURL builds a full URL for the given API path.
func apiURL(path string) string {
	return strings.TrimRight(testServer, "/") + "/v1/" + path
}

var idCounter atomic.Int64

// uniqueID returns a sheet id that is unique within this test run.
func uniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano()%1_000_000, idCounter.Add(1))
}

// doJSON sends body as JSON and decodes the JSON response.
func doJSON(t *testing.T, method, url string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("HTTP error: %v", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var result map[string]interface{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &result); err != nil {
			t.Fatalf("decode response (%d): %v: %s", resp.StatusCode, err, raw)
		}
	}
	return resp.StatusCode, result
}

// createSheet stores a YAML sheet under id and deletes it when the test ends.
func createSheet(t *testing.T, id, sourceYAML string) {
	t.Helper()
	status, result := doJSON(t, "POST", apiURL("sheets?sheetId="+id), map[string]interface{}{
		"sourceContents": sourceYAML,
	})
	if status != http.StatusOK {
		t.Fatalf("createSheet failed with status %d: %v", status, result)
	}
	t.Cleanup(func() {
		req, _ := http.NewRequest("DELETE", apiURL("sheets/"+id), nil)
		if resp, err := client.Do(req); err == nil {
			resp.Body.Close()
		}
	})
}

// rollExpression rolls expr with an optional context and seed.
func rollExpression(t *testing.T, expr string, ctx map[string]int, seed *int64) (int, map[string]interface{}) {
	t.Helper()
	body := map[string]interface{}{"expression": expr}
	if ctx != nil {
		body["context"] = ctx
	}
	if seed != nil {
		body["seed"] = *seed
	}
	return doJSON(t, "POST", apiURL("roll"), body)
}

// errorMessage extracts error.message from an error envelope.
func errorMessage(result map[string]interface{}) string {
	e, _ := result["error"].(map[string]interface{})
	msg, _ := e["message"].(string)
	return msg
}

// assertValue fails unless result["value"] equals want.
func assertValue(t *testing.T, result map[string]interface{}, want int) {
	t.Helper()
	got, ok := result["value"].(float64)
	if !ok {
		t.Fatalf("missing value in %v", result)
	}
	if int(got) != want {
		t.Errorf("value = %v, want %d", got, want)
	}
}

const heroSheet = `
name: Aria
active: human
global:
  - total: profBonus + level
  - level: 5
  - id: profBonus
    expression: floor((level - 1) / 4) + 2
  - id: hp
    name: Hit Points
    expression: 10 + level * 6
    usage: HealthResource
subsheets:
  - id: human
    properties:
      - str: 16
      - id: strMod
        expression: floor((str - 10) / 2)
      - id: fireMagic
        name: Fire Magic
        usage: Quality
        tags: [Fire]
      - id: rank
        expression: "3"
        parentId: fireMagic
    actions:
      - id: firebolt
        name: Fire Bolt
        qualityTags: [Fire]
        roll: d10
  - id: wolf
    properties:
      - str: 12
      - id: strMod
        expression: floor((str - 10) / 2)
`
