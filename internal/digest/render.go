package digest

import (
	"encoding/json"
	"fmt"
	"html/template"
	"strings"
)

// Subject builds the digest email subject line.
func Subject(d *Digest) string {
	s := fmt.Sprintf("Horn Risk Delta — Week %d | %d events", d.WeekNumber, d.TotalThisWeek)
	if d.HighSeverityCount > 0 {
		s += fmt.Sprintf(", %d high-severity", d.HighSeverityCount)
	}
	return s
}

// RenderJSON is the machine-readable form, served on the admin endpoint.
func RenderJSON(d *Digest) ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// FormatPct renders a percent pointer for display; nil (weak baseline)
// renders as empty so no percentage appears anywhere in the digest.
func FormatPct(p *int) string {
	if p == nil {
		return ""
	}
	if *p > 0 {
		return fmt.Sprintf("+%d%%", *p)
	}
	return fmt.Sprintf("%d%%", *p)
}

func severityColor(sev int) string {
	switch {
	case sev >= 5:
		return "#8c2f2f"
	case sev == 4:
		return "#b05a3a"
	case sev == 3:
		return "#b08c3a"
	default:
		return "#6b7280"
	}
}

var htmlTmpl = template.Must(template.New("digest").Funcs(template.FuncMap{
	"pct":      FormatPct,
	"sevColor": severityColor,
	"join":     func(list []string) string { return strings.Join(list, ", ") },
}).Parse(`<!DOCTYPE html>
<html>
<body style="margin:0;padding:0;background:#f4f4f2;font-family:Georgia,serif;color:#222;">
<div style="max-width:640px;margin:0 auto;padding:24px;">
  <h1 style="font-size:22px;margin:0 0 4px;">Horn Risk Delta</h1>
  <p style="margin:0 0 16px;color:#666;font-size:13px;">Week {{.WeekNumber}} &middot; {{.Label}}</p>

  {{if .BaselineWeak}}
  <p style="background:#fdf6e3;border-left:3px solid #b08c3a;padding:8px 12px;font-size:13px;">
    Limited history last week; this edition shows raw counts without week-over-week comparisons.
  </p>
  {{end}}

  <p style="font-size:15px;">
    <strong>{{.TotalThisWeek}}</strong> tracked events this week
    (last week: {{.TotalLastWeek}}{{with .TotalChange}}, {{pct .}}{{end}}).
  </p>

  {{if .Topline}}
  <h2 style="font-size:16px;border-bottom:1px solid #ddd;padding-bottom:4px;">By event type</h2>
  <table style="width:100%;border-collapse:collapse;font-size:14px;">
    {{range .Topline}}
    <tr>
      <td style="padding:4px 0;">{{.EventType}}</td>
      <td style="padding:4px 0;text-align:right;">{{.ThisWeek}} <span style="color:#999;">(was {{.LastWeek}})</span></td>
      <td style="padding:4px 0 4px 12px;text-align:right;color:#666;">{{pct .Change}}</td>
    </tr>
    {{end}}
  </table>
  {{end}}

  {{if .HighSeverity}}
  <h2 style="font-size:16px;border-bottom:1px solid #ddd;padding-bottom:4px;">High-severity developments</h2>
  {{range .HighSeverity}}
  <div style="margin:12px 0;padding:10px 12px;background:#fff;border-left:4px solid {{sevColor .Severity}};">
    <div style="font-size:12px;color:#666;margin-bottom:4px;">
      <span style="color:{{sevColor .Severity}};font-weight:bold;">Severity {{.Severity}}</span>
      &middot; {{.Country}}{{if .DisplayRegions}} &middot; {{join .DisplayRegions}}{{end}}
      &middot; {{.VerificationStatus}}
    </div>
    <div style="font-size:14px;margin-bottom:4px;">{{.Summary}}</div>
    {{if .Rationale}}<div style="font-size:12px;color:#888;margin-bottom:4px;">{{.Rationale}}</div>{{end}}
    <div style="font-size:12px;color:#666;">
      {{.SourceCount}} source report(s){{if .Sources}}: {{join .Sources}}{{end}}
      {{if .PrimaryURL}}&middot; <a href="{{.PrimaryURL}}" style="color:#555;">coverage</a>{{end}}
    </div>
  </div>
  {{end}}
  {{end}}

  {{if .HotRegions}}
  <h2 style="font-size:16px;border-bottom:1px solid #ddd;padding-bottom:4px;">Hot regions</h2>
  <table style="width:100%;border-collapse:collapse;font-size:14px;">
    {{range .HotRegions}}
    <tr>
      <td style="padding:4px 0;">{{.Region}}</td>
      <td style="padding:4px 0;text-align:right;">{{.Count}} events, avg sev {{printf "%.1f" .AvgSeverity}}</td>
      <td style="padding:4px 0 4px 12px;text-align:right;color:#666;">{{pct .Change}}</td>
    </tr>
    {{end}}
  </table>
  {{end}}

  {{if .ActorSpikes}}
  <h2 style="font-size:16px;border-bottom:1px solid #ddd;padding-bottom:4px;">Actor activity shifts</h2>
  <table style="width:100%;border-collapse:collapse;font-size:14px;">
    {{range .ActorSpikes}}
    <tr>
      <td style="padding:4px 0;">{{.Actor}}</td>
      <td style="padding:4px 0;text-align:right;">{{.ThisWeek}} <span style="color:#999;">(was {{.LastWeek}})</span></td>
      <td style="padding:4px 0 4px 12px;text-align:right;color:#666;">{{if gt .Delta 0}}+{{end}}{{.Delta}}</td>
    </tr>
    {{end}}
  </table>
  {{end}}

  <p style="margin-top:24px;font-size:11px;color:#999;">
    Automated weekly briefing compiled from public news coverage of South Sudan and Sudan.
    Event classifications are machine-generated and may contain errors.
    {{if .UnsubscribeURL}}<a href="{{.UnsubscribeURL}}" style="color:#999;">Unsubscribe</a>{{end}}
  </p>
</div>
</body>
</html>`))

type htmlPayload struct {
	*Digest
	UnsubscribeURL string
}

// RenderHTML renders the email body for one recipient; unsubscribeURL may be
// empty when the digest is rendered for the admin endpoint.
func RenderHTML(d *Digest, unsubscribeURL string) (string, error) {
	var b strings.Builder
	if err := htmlTmpl.Execute(&b, htmlPayload{Digest: d, UnsubscribeURL: unsubscribeURL}); err != nil {
		return "", fmt.Errorf("render digest html: %w", err)
	}
	return b.String(), nil
}

// RenderText is the plain-text alternative part.
func RenderText(d *Digest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "HORN RISK DELTA — Week %d (%s)\n\n", d.WeekNumber, d.Label)
	if d.BaselineWeak {
		b.WriteString("Limited history last week; raw counts only, no week-over-week comparisons.\n\n")
	}
	fmt.Fprintf(&b, "%d tracked events this week (last week: %d", d.TotalThisWeek, d.TotalLastWeek)
	if d.TotalChange != nil {
		fmt.Fprintf(&b, ", %s", FormatPct(d.TotalChange))
	}
	b.WriteString(").\n")

	if len(d.Topline) > 0 {
		b.WriteString("\nBY EVENT TYPE\n")
		for _, t := range d.Topline {
			fmt.Fprintf(&b, "  %-16s %3d (was %d)", t.EventType, t.ThisWeek, t.LastWeek)
			if t.Change != nil {
				fmt.Fprintf(&b, "  %s", FormatPct(t.Change))
			}
			b.WriteString("\n")
		}
	}

	if len(d.HighSeverity) > 0 {
		b.WriteString("\nHIGH-SEVERITY DEVELOPMENTS\n")
		for _, h := range d.HighSeverity {
			fmt.Fprintf(&b, "\n  [sev %d] %s", h.Severity, h.Country)
			if len(h.DisplayRegions) > 0 {
				fmt.Fprintf(&b, " — %s", strings.Join(h.DisplayRegions, ", "))
			}
			fmt.Fprintf(&b, " (%s)\n  %s\n", h.VerificationStatus, h.Summary)
			if h.Rationale != "" {
				fmt.Fprintf(&b, "  %s\n", h.Rationale)
			}
			fmt.Fprintf(&b, "  %d source report(s)", h.SourceCount)
			if h.PrimaryURL != "" {
				fmt.Fprintf(&b, ": %s", h.PrimaryURL)
			}
			b.WriteString("\n")
		}
	}

	if len(d.HotRegions) > 0 {
		b.WriteString("\nHOT REGIONS\n")
		for _, r := range d.HotRegions {
			fmt.Fprintf(&b, "  %-28s %2d events, avg sev %.1f", r.Region, r.Count, r.AvgSeverity)
			if r.Change != nil {
				fmt.Fprintf(&b, "  %s", FormatPct(r.Change))
			}
			b.WriteString("\n")
		}
	}

	if len(d.ActorSpikes) > 0 {
		b.WriteString("\nACTOR ACTIVITY SHIFTS\n")
		for _, a := range d.ActorSpikes {
			fmt.Fprintf(&b, "  %-28s %d (was %d, %+d)\n", a.Actor, a.ThisWeek, a.LastWeek, a.Delta)
		}
	}

	b.WriteString("\nAutomated weekly briefing. Classifications are machine-generated.\n")
	return b.String()
}
