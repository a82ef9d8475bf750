package main

import (
	"html/template"
	"io"
)

type pageData struct {
	File     string
	Language Language
	Original string
	Code     string
	Targets  []string
	Selected string
	Error    string
	Result   *ExtractionResult
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>shakeout - {{.File}}</title>
<style>
body { font-family: system-ui, sans-serif; margin: 1rem 2rem; }
nav button { margin: 0 .25rem .5rem 0; }
nav button.selected { font-weight: bold; }
main { display: grid; grid-template-columns: 1fr 1fr; gap: 1rem; }
pre { background: #f6f8fa; padding: .75rem; overflow: auto; min-height: 10rem; }
.error { color: #b00020; }
.status { color: #666; font-size: .9rem; }
</style>
</head>
<body>
<h1>{{.File}} <small class="status">{{.Language}}</small></h1>
<nav id="targets">
{{range .Targets}}<form method="get" style="display:inline"><button name="target" value="{{.}}"{{if eq . $.Selected}} class="selected"{{end}}>{{.}}</button></form>
{{end}}</nav>
<p id="status" class="status">{{if .Result}}{{len .Result.Removed}} removed, {{.Result.Iterations}} iteration(s){{end}}</p>
<p id="error" class="error">{{.Error}}</p>
<main>
<section><h2>Original</h2><pre id="original">{{.Original}}</pre></section>
<section><h2>Extracted: <span id="selected">{{.Selected}}</span></h2><pre id="code">{{.Code}}</pre></section>
</main>
<script>
(function () {
  var original = document.getElementById("original").textContent;
  var buttons = function () { return document.querySelectorAll("#targets button"); };
  var ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
  var setLoading = function (loading) {
    buttons().forEach(function (b) { b.disabled = loading; });
    document.getElementById("status").textContent = loading ? "loading..." : "";
  };
  buttons().forEach(function (b) {
    b.addEventListener("click", function (e) {
      e.preventDefault();
      ws.send(JSON.stringify({type: "select", target: b.value}));
    });
  });
  ws.onmessage = function (e) {
    var msg = JSON.parse(e.data);
    if (msg.type === "loading") { setLoading(true); return; }
    if (msg.type !== "result" && msg.type !== "error") { return; }
    setLoading(false);
    if (msg.source) {
      original = msg.source;
      document.getElementById("original").textContent = original;
    }
    document.getElementById("selected").textContent = msg.target || "";
    buttons().forEach(function (b) { b.classList.toggle("selected", b.value === msg.target); });
    if (msg.type === "result") {
      document.getElementById("error").textContent = "";
      document.getElementById("code").textContent = msg.result.code;
      document.getElementById("status").textContent = msg.result.removed.length + " removed, " + msg.result.iterations + " iteration(s)";
    } else if (msg.type === "error") {
      document.getElementById("error").textContent = msg.message;
      document.getElementById("code").textContent = original;
    }
  };
})();
</script>
</body>
</html>
`))

// renderPage writes the side-by-side page. When extraction fails the
// original text is shown in place of the extraction.
func renderPage(w io.Writer, v view) error {
	data := pageData{
		Targets:  v.targets,
		Selected: v.target,
		Result:   v.result,
	}
	if v.snapshot != nil {
		data.File = v.snapshot.Path
		data.Language = v.snapshot.Language
		data.Original = string(v.snapshot.Text)
	}
	if v.err != nil {
		data.Error = v.err.Error()
		data.Code = data.Original
	} else if v.result != nil {
		data.Code = v.result.Code
	}
	return pageTemplate.Execute(w, data)
}
