package evaluation

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/interviewrt/core/internal/proctor"
)

// reportTemplate renders the full interview bundle: transcript, coding
// outcomes, warning thumbnails, and the AI summary.
var reportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Interview Report — {{.InterviewID}}</title>
<style>
body { font-family: sans-serif; max-width: 60em; margin: 2em auto; color: #222; }
h2 { border-bottom: 1px solid #ccc; padding-bottom: .2em; }
.turn-interviewer { color: #1a4d80; margin: .4em 0; }
.turn-candidate { color: #222; margin: .4em 0 1em 1.5em; }
.score { font-size: 1.4em; font-weight: bold; }
table { border-collapse: collapse; }
td, th { border: 1px solid #ccc; padding: .3em .6em; }
.pass { color: #186218; }
.fail { color: #8a1f1f; }
img.snapshot { max-width: 160px; margin: .3em; }
</style>
</head>
<body>
<h1>Interview Report</h1>
<p>Interview <code>{{.InterviewID}}</code>, session <code>{{.SessionID}}</code>.</p>

<h2>Scores</h2>
<p class="score">Overall: {{printf "%.1f" .Overall}}/10 — {{if .Recommend}}Recommended{{else}}Not recommended{{end}}</p>
<table>
<tr><th>Technical</th><th>Communication</th><th>Problem solving</th></tr>
<tr><td>{{printf "%.1f" .Dimensions.Technical}}</td><td>{{printf "%.1f" .Dimensions.Communication}}</td><td>{{printf "%.1f" .Dimensions.ProblemSolving}}</td></tr>
</table>

<h2>Summary</h2>
<p>{{.Summary}}</p>
{{if .Strengths}}<h3>Strengths</h3><ul>{{range .Strengths}}<li>{{.}}</li>{{end}}</ul>{{end}}
{{if .Weaknesses}}<h3>Areas for improvement</h3><ul>{{range .Weaknesses}}<li>{{.}}</li>{{end}}</ul>{{end}}

<h2>Transcript</h2>
{{range .Turns}}
<p class="turn-{{if eq .Role "Interviewer"}}interviewer{{else}}candidate{{end}}"><strong>{{.Role}}:</strong> {{.Text}}</p>
{{end}}

{{if .Coding}}
<h2>Coding round</h2>
{{range .Coding}}
<p>Question <code>{{.QuestionID}}</code> ({{.Language}}): {{.TestsPassed}}/{{.TestsTotal}} tests passed, combined score {{.Combined}}/100.</p>
<table>
<tr><th>Test</th><th>Result</th><th>Runtime (ms)</th></tr>
{{range .Runs}}<tr><td>{{.TestID}}</td><td class="{{if .Passed}}pass{{else}}fail{{end}}">{{if .Passed}}pass{{else}}fail{{end}}</td><td>{{.RuntimeMS}}</td></tr>{{end}}
</table>
{{end}}
{{end}}

<h2>Proctoring</h2>
<p>{{.ProctoringSummary}}</p>
{{range .Snapshots}}<img class="snapshot" src="{{.}}" alt="warning snapshot">{{end}}

{{if .RecordingURL}}<h2>Recording</h2><p><a href="{{.RecordingURL}}">Merged recording</a></p>{{end}}
</body>
</html>
`))

type reportTurn struct {
	Role string
	Text string
}

type reportCoding struct {
	QuestionID  string
	Language    string
	TestsPassed int
	TestsTotal  int
	Combined    int
	Runs        []reportRun
}

type reportRun struct {
	TestID    string
	Passed    bool
	RuntimeMS int64
}

type reportData struct {
	InterviewID       string
	SessionID         string
	Overall           float64
	Dimensions        Dimensions
	Recommend         bool
	Summary           string
	Strengths         []string
	Weaknesses        []string
	Turns             []reportTurn
	Coding            []reportCoding
	ProctoringSummary string
	Snapshots         []string
	RecordingURL      string
}

func (a *Assembler) renderAndStoreReport(ctx context.Context, in Inputs, ev Evaluation, summary string) (string, error) {
	data := reportData{
		InterviewID:       in.InterviewID,
		SessionID:         in.SessionID,
		Overall:           ev.OverallScore,
		Dimensions:        ev.Dimensions,
		Recommend:         ev.Recommend,
		Summary:           summary,
		Strengths:         ev.Strengths,
		Weaknesses:        ev.Weaknesses,
		ProctoringSummary: ev.ProctoringSummary,
	}
	for _, t := range in.Turns {
		data.Turns = append(data.Turns, reportTurn{Role: t.Role, Text: t.Text})
	}
	for _, r := range in.CodingResults {
		rc := reportCoding{
			QuestionID:  r.Submission.QuestionID,
			Language:    r.Submission.Language,
			TestsPassed: r.TestsPassed,
			TestsTotal:  r.TestsTotal,
			Combined:    r.Combined,
		}
		for _, run := range r.RunResults {
			rc.Runs = append(rc.Runs, reportRun{TestID: run.TestID, Passed: run.Passed, RuntimeMS: run.RuntimeMS})
		}
		data.Coding = append(data.Coding, rc)
	}
	for _, w := range warningSnapshots(in.Warnings) {
		data.Snapshots = append(data.Snapshots, a.reports.URL(w))
	}
	if in.RecordingRef != "" {
		data.RecordingURL = a.reports.URL(in.RecordingRef)
	}

	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("evaluation: render report: %w", err)
	}
	ref, err := a.reports.Put(ctx, "reports/"+in.SessionID, "report.html", &buf)
	if err != nil {
		return "", fmt.Errorf("evaluation: store report: %w", err)
	}
	return ref, nil
}

func warningSnapshots(warnings []proctor.WarningEvent) []string {
	var refs []string
	for _, w := range warnings {
		if w.SnapshotRef != "" {
			refs = append(refs, w.SnapshotRef)
		}
	}
	return refs
}
