package rules

const helpersJS = `
(function(){
  function parseJSON(line) {
    try { return JSON.parse(line); } catch (e) { return null; }
  }

  function extract(line, re, group) {
    if (typeof line !== "string") return null;
    if (!(re instanceof RegExp)) return null;
    const m = re.exec(line);
    if (!m) return null;
    const idx = (typeof group === "number") ? group : 1;
    const v = m[idx];
    return (typeof v === "string") ? v : null;
  }

  function namedCapture(line, re) {
    if (typeof line !== "string") return null;
    if (!(re instanceof RegExp)) return null;
    const m = re.exec(line);
    if (!m || !m.groups) return null;
    const out = {};
    for (const k of Object.keys(m.groups)) out[k] = m.groups[k];
    return out;
  }

  // AutoMDF worker lines: [AutoMDF][LEVEL][HH:MM:SS] body
  function worker(line) {
    return namedCapture(line, /^\[AutoMDF\]\[(?<level>[A-Z]+)\]\[(?<time>\d{2}:\d{2}:\d{2})\]\s*(?<body>.*)$/);
  }

  globalThis.rules = { parseJSON, extract, namedCapture, worker };
})();
`

// builtinJS flags the worker messages that mean a run cannot continue even
// when the worker never sent a typed signal frame.
const builtinJS = `
register({
  name: "builtin",
  classify(line) {
    const l = line.toLowerCase();
    if (l.indexOf("pyautogui.failsafeexception") >= 0) {
      return { level: "ERROR", signal: "failsafe", detail: line };
    }
    if (l.indexOf("número de averbação não encontrado") >= 0 || l.indexOf("falha na extração") >= 0) {
      return { level: "ERROR", signal: "extraction_failure", detail: line };
    }
    if (l.indexOf("navegador não encontrado") >= 0 || l.indexOf("foco do navegador") >= 0) {
      return { level: "WARNING", signal: "focus_failure", detail: line };
    }
    const w = rules.worker(line);
    if (w && (w.level === "ERROR" || w.level === "CRITICAL")) {
      return { level: w.level, message: w.body };
    }
    return null;
  },
});
`
