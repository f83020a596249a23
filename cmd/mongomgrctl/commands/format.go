package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mguindin/mongomgr/internal/connmgr"
)

const (
	formatJSON  = "json"
	formatTable = "table"
)

// errUnsupportedFormat is returned when the requested output format is not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

// formatConnection renders a resolved connection in the requested format.
func formatConnection(conn *connmgr.Connection, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatConnectionJSON(conn)
	case formatTable:
		return formatConnectionTable(conn), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func formatConnectionTable(conn *connmgr.Connection) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	server := conn.Server()
	fmt.Fprintf(w, "Deployment:\t%s\n", conn.Deployment())
	fmt.Fprintf(w, "Server:\t%s:%d\n", server.Host, server.Port)
	fmt.Fprintf(w, "State:\t%s\n", conn.State())
	fmt.Fprintf(w, "Role:\t%s\n", conn.Role())

	if rs := conn.ReplSetName(); rs != "" {
		fmt.Fprintf(w, "Replica Set:\t%s\n", rs)
	}
	if tags := conn.Tags(); len(tags) > 0 {
		fmt.Fprintf(w, "Tags:\t%s\n", formatTags(tags))
	}

	fmt.Fprintf(w, "Latency:\t%s\n", time.Duration(conn.LatencyMicros())*time.Microsecond)

	if !conn.LastPingAt().IsZero() {
		fmt.Fprintf(w, "Last Ping:\t%s\n", conn.LastPingAt().Format(time.RFC3339))
	}
	if !conn.LastIsMasterAt().IsZero() {
		fmt.Fprintf(w, "Last Is-Master:\t%s\n", conn.LastIsMasterAt().Format(time.RFC3339))
	}

	fmt.Fprintf(w, "Hash:\t%s\n", conn.Hash())

	_ = w.Flush()
	return buf.String()
}

func formatTags(tags map[string]string) string {
	parts := make([]string, 0, len(tags))
	for k, v := range tags {
		parts = append(parts, fmt.Sprintf("%s=%s", k, v))
	}
	return strings.Join(parts, ",")
}

func formatConnectionJSON(conn *connmgr.Connection) (string, error) {
	data, err := json.MarshalIndent(connectionToView(conn), "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal connection to JSON: %w", err)
	}
	return string(data), nil
}

type connectionView struct {
	Deployment    string            `json:"deployment"`
	Server        string            `json:"server"`
	State         string            `json:"state"`
	Role          string            `json:"role"`
	ReplSetName   string            `json:"replica_set,omitempty"`
	Tags          map[string]string `json:"tags,omitempty"`
	LatencyMicros int64             `json:"latency_us"`
	LastPingAt    string            `json:"last_ping_at,omitempty"`
	LastIsMaster  string            `json:"last_is_master_at,omitempty"`
	Hash          string            `json:"hash"`
}

func connectionToView(conn *connmgr.Connection) *connectionView {
	server := conn.Server()
	v := &connectionView{
		Deployment:    conn.Deployment(),
		Server:        fmt.Sprintf("%s:%d", server.Host, server.Port),
		State:         conn.State().String(),
		Role:          conn.Role().String(),
		ReplSetName:   conn.ReplSetName(),
		Tags:          conn.Tags(),
		LatencyMicros: conn.LatencyMicros(),
		Hash:          conn.Hash(),
	}

	if !conn.LastPingAt().IsZero() {
		v.LastPingAt = conn.LastPingAt().Format(time.RFC3339)
	}
	if !conn.LastIsMasterAt().IsZero() {
		v.LastIsMaster = conn.LastIsMasterAt().Format(time.RFC3339)
	}

	return v
}
