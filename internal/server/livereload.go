package server

import "strings"

const liveReloadScript = `<script>(function(){` +
	`var p=location.protocol==="https:"?"wss://":"ws://";` +
	`function connect(){var ws=new WebSocket(p+location.host+"` + LiveReloadPath + `");` +
	`ws.onmessage=function(e){try{if(JSON.parse(e.data).type==="reload"){location.reload();}}catch(_){}};` +
	`ws.onclose=function(){setTimeout(connect,1000);};}` +
	`connect();})();</script>`

// InjectLiveReload inserts the live-reload client before the last </body>,
// or appends it when the page has no body end tag.
func InjectLiveReload(markup string) string {
	if strings.Contains(markup, LiveReloadPath) {
		return markup
	}
	i := max(strings.LastIndex(markup, "</body>"), strings.LastIndex(markup, "</BODY>"))
	if i < 0 {
		return markup + liveReloadScript
	}
	return markup[:i] + liveReloadScript + markup[i:]
}
