package server

import (
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/kubeintel/kubeintel/internal/costmodel"
	"github.com/kubeintel/kubeintel/internal/telemetry"
)

const dashboardStyle = `<style>
  body { font-family: system-ui, sans-serif; background: #0a0a0a; color: #fff; margin: 0; padding: 24px; }
  h1 { font-size: 24px; margin-bottom: 4px; }
  .subtitle { color: #9ca3af; margin-bottom: 24px; }
  .cards { display: flex; gap: 16px; flex-wrap: wrap; margin-bottom: 24px; }
  .card { background: #18181b; border: 1px solid #27272a; border-radius: 8px; padding: 16px 24px; min-width: 160px; }
  .card .label { color: #9ca3af; font-size: 12px; text-transform: uppercase; }
  .card .value { font-size: 22px; font-family: monospace; margin-top: 4px; }
  table { border-collapse: collapse; width: 100%; margin-bottom: 24px; }
  th, td { text-align: left; padding: 8px 12px; border-bottom: 1px solid #27272a; font-size: 13px; }
  th { color: #9ca3af; text-transform: uppercase; font-size: 11px; }
  td { font-family: monospace; }
  .status-completed { color: #22c55e; }
  .status-running { color: #eab308; }
  .status-error, .status-timeout { color: #ef4444; }
  .impact-high { color: #ef4444; }
  .impact-medium { color: #eab308; }
  .impact-low { color: #9ca3af; }
  a { color: #22c55e; text-decoration: none; font-family: monospace; }
  a:hover { text-decoration: underline; }
  .footer { color: #52525b; font-size: 12px; margin-top: 32px; }
</style>`

func writeDashboardHead(b *strings.Builder, title string) {
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	b.WriteString("<meta http-equiv=\"refresh\" content=\"30\">\n")
	fmt.Fprintf(b, "<title>%s</title>\n", html.EscapeString(title))
	b.WriteString(dashboardStyle)
	b.WriteString("\n</head>\n<body>\n")
}

func writeDashboardFoot(b *strings.Builder) {
	fmt.Fprintf(b, "<div class=\"footer\">kubeintel %s &middot; generated %s &middot; auto-refresh 30s</div>\n",
		Version, time.Now().UTC().Format(time.RFC3339))
	b.WriteString("</body>\n</html>\n")
}

func writeCard(b *strings.Builder, label, value string) {
	fmt.Fprintf(b, "<div class=\"card\"><div class=\"label\">%s</div><div class=\"value\">%s</div></div>\n",
		html.EscapeString(label), html.EscapeString(value))
}

// handleCostVisualizer renders the server-side cost dashboard.
func (s *Server) handleCostVisualizer(w http.ResponseWriter, r *http.Request) {
	agentLimit, monitorLimit := s.costReportFlows()
	report := s.costs.Report(s.collector.AgentFlows(agentLimit), s.collector.MonitorFlows(monitorLimit))
	b := &strings.Builder{}

	writeDashboardHead(b, "KubeIntel Cost Dashboard")
	b.WriteString("<h1>KubeIntel Cost Dashboard</h1>\n")
	fmt.Fprintf(b, "<div class=\"subtitle\">%s &middot; <a href=\"/api/cost/analysis\">JSON</a> &middot; <a href=\"/flow-visualizer\">flows</a></div>\n",
		html.EscapeString(report.ModelInfo.Model))

	b.WriteString("<div class=\"cards\">\n")
	writeCard(b, "Total Cost", fmt.Sprintf("$%.4f", report.CostBreakdown.Totals.TotalCost))
	writeCard(b, "Avg / Request", fmt.Sprintf("$%.4f", report.CostBreakdown.Totals.AverageCostPerRequest))
	writeCard(b, "Hourly Projection", fmt.Sprintf("$%.4f", report.Projections.Hourly.TotalEstimated))
	writeCard(b, "Daily Projection", fmt.Sprintf("$%.2f", report.Projections.Daily.TotalEstimated))
	writeCard(b, "Monthly Projection", fmt.Sprintf("$%.2f", report.Projections.Monthly.TotalEstimated))
	b.WriteString("</div>\n")

	b.WriteString("<h1>Breakdown</h1>\n<table>\n")
	b.WriteString("<tr><th>Category</th><th>Flows</th><th>Input Tokens</th><th>Output Tokens</th><th>Cost</th><th>Avg / Flow</th></tr>\n")
	writeGroupRow(b, "Agent Analysis", report.CostBreakdown.AgentAnalysis)
	writeGroupRow(b, "Background Monitoring", report.CostBreakdown.BackgroundMonitoring)
	b.WriteString("</table>\n")

	b.WriteString("<h1>Recommendations</h1>\n<table>\n")
	b.WriteString("<tr><th>Impact</th><th>Title</th><th>Suggestion</th></tr>\n")
	for _, rec := range report.Recommendations {
		fmt.Fprintf(b, "<tr><td class=\"impact-%s\">%s</td><td>%s</td><td>%s</td></tr>\n",
			html.EscapeString(rec.Impact), html.EscapeString(rec.Impact),
			html.EscapeString(rec.Title), html.EscapeString(rec.Suggestion))
	}
	b.WriteString("</table>\n")

	savings := report.Projections.SessionRotationSavings
	b.WriteString("<div class=\"cards\">\n")
	writeCard(b, "Cost Without Rotation", fmt.Sprintf("$%.2f", savings.CostWithoutRotation))
	writeCard(b, "Cost With Rotation", fmt.Sprintf("$%.4f", savings.CostWithRotation))
	writeCard(b, "Rotation Savings", fmt.Sprintf("%.1f%%", savings.SavingsPercentage))
	b.WriteString("</div>\n")

	writeDashboardFoot(b)
	s.writeHTML(w, b.String())
}

func writeGroupRow(b *strings.Builder, name string, g costmodel.GroupCosts) {
	fmt.Fprintf(b, "<tr><td>%s</td><td>%d</td><td>%d</td><td>%d</td><td>$%.4f</td><td>$%.4f</td></tr>\n",
		html.EscapeString(name), g.FlowCount, g.TotalInputTokens, g.TotalOutputTokens,
		g.TotalCost, g.AverageCostPerFlow)
}

func writeFlowTable(b *strings.Builder, title string, flows []telemetry.Flow) {
	fmt.Fprintf(b, "<h1>%s</h1>\n<table>\n", html.EscapeString(title))
	b.WriteString("<tr><th>ID</th><th>Status</th><th>Started</th><th>Duration</th><th>Tokens</th><th>Trace</th></tr>\n")
	if len(flows) == 0 {
		b.WriteString("<tr><td colspan=\"6\">no flows recorded</td></tr>\n")
	}
	for _, f := range flows {
		duration := "-"
		if f.Duration > 0 {
			duration = fmt.Sprintf("%d ms", f.Duration)
		}
		fmt.Fprintf(b, "<tr><td>%s</td><td class=\"status-%s\">%s</td><td>%s</td><td>%s</td><td>%d / %d</td><td><a href=\"/api/telemetry/traces/%s\">%s</a></td></tr>\n",
			html.EscapeString(f.ID), html.EscapeString(string(f.Status)), html.EscapeString(string(f.Status)),
			f.StartTime.UTC().Format("15:04:05"), duration,
			f.Tokens.Input, f.Tokens.Output,
			html.EscapeString(f.TraceID), html.EscapeString(f.TraceID))
	}
	b.WriteString("</table>\n")
}

// handleFlowVisualizer renders the server-side ledger dashboard.
func (s *Server) handleFlowVisualizer(w http.ResponseWriter, r *http.Request) {
	metrics := s.collector.Metrics()
	agentFlows := s.collector.AgentFlows(10)
	monitorFlows := s.collector.MonitorFlows(10)
	b := &strings.Builder{}

	writeDashboardHead(b, "KubeIntel Flow Dashboard")
	b.WriteString("<h1>KubeIntel Flow Dashboard</h1>\n")
	b.WriteString("<div class=\"subtitle\"><a href=\"/api/telemetry/metrics\">JSON</a> &middot; <a href=\"/cost-visualizer\">costs</a></div>\n")

	b.WriteString("<div class=\"cards\">\n")
	writeCard(b, "Total Flows", fmt.Sprintf("%d", metrics.TotalFlows))
	writeCard(b, "Active", fmt.Sprintf("%d", metrics.ActiveFlows))
	writeCard(b, "Success Rate", fmt.Sprintf("%.1f%%", metrics.SuccessRate))
	writeCard(b, "Avg Duration", fmt.Sprintf("%.0f ms", metrics.AverageDuration))
	writeCard(b, "Traces", fmt.Sprintf("%d", metrics.TotalTraces))
	b.WriteString("</div>\n")

	writeFlowTable(b, "Agent Flows", agentFlows)
	writeFlowTable(b, "Monitor Flows", monitorFlows)

	writeDashboardFoot(b)
	s.writeHTML(w, b.String())
}

func (s *Server) writeHTML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}
