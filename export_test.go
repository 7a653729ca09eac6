package sercom

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var exportTime = time.Date(2024, 5, 1, 9, 15, 42, 0, time.Local)

func sampleEntries() []Entry {
	return []Entry{
		{Seq: 1, Kind: KindEvent, Time: exportTime, Category: CategoryInfo, Description: "Connected to /dev/ttyUSB0 at 115200 baud"},
		{Seq: 2, Kind: KindExchange, Time: exportTime, Command: "AT", Response: "OK", Elapsed: 102 * time.Millisecond},
		{Seq: 3, Kind: KindExchange, Time: exportTime, Command: "ATI", Elapsed: 3 * time.Millisecond, Err: "not connected"},
		{Seq: 4, Kind: KindExchange, Time: exportTime, Command: "AT+ID", Response: "", Elapsed: 100 * time.Millisecond},
	}
}

func TestWriteJSON_Shape(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleEntries()))

	var raw []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &raw))
	require.Len(t, raw, 4)

	assert.Equal(t, map[string]any{
		"timestamp": "2024-05-01 09:15:42",
		"event":     "Connected to /dev/ttyUSB0 at 115200 baud",
	}, raw[0])
	assert.Equal(t, map[string]any{
		"timestamp": "2024-05-01 09:15:42",
		"command":   "AT",
		"response":  "OK",
		"time":      0.102,
	}, raw[1])
	assert.Equal(t, "not connected", raw[2]["error"])
	assert.Equal(t, "", raw[2]["response"])
	// an empty response is still written
	assert.Contains(t, raw[3], "response")
	assert.NotContains(t, raw[3], "error")

	assert.True(t, strings.HasPrefix(buf.String(), "[\n    {\n        \"timestamp\""))
}

func TestWriteJSON_EmptyLog(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, nil))
	assert.Equal(t, "[]\n", buf.String())
}

func TestParseJSONLog_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	in := sampleEntries()
	require.NoError(t, WriteJSON(&buf, in))

	out, err := ParseJSONLog(&buf)
	require.NoError(t, err)
	require.Len(t, out, len(in))
	for i := range in {
		assert.Equal(t, in[i].Kind, out[i].Kind)
		assert.Equal(t, in[i].Seq, out[i].Seq)
		assert.True(t, in[i].Time.Equal(out[i].Time))
		assert.Equal(t, in[i].Description, out[i].Description)
		assert.Equal(t, in[i].Command, out[i].Command)
		assert.Equal(t, in[i].Response, out[i].Response)
		assert.Equal(t, in[i].Elapsed, out[i].Elapsed)
		assert.Equal(t, in[i].Err, out[i].Err)
	}
}

func TestParseJSONLog_Rejects(t *testing.T) {
	_, err := ParseJSONLog(strings.NewReader(`{"timestamp":"x"}`))
	require.Error(t, err)
	_, err = ParseJSONLog(strings.NewReader(`[{"timestamp":"yesterday","event":"x"}]`))
	require.Error(t, err)
	_, err = ParseJSONLog(strings.NewReader(`[{"timestamp":"2024-05-01 09:15:42"}]`))
	require.Error(t, err)
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, sampleEntries()))

	want := "[2024-05-01 09:15:42] Connected to /dev/ttyUSB0 at 115200 baud\n" +
		"[2024-05-01 09:15:42] > AT (Took 0.102 sec)\n" +
		"Response: OK\n\n" +
		"[2024-05-01 09:15:42] > ATI (Took 0.003 sec)\n" +
		"Error: not connected\n\n" +
		"[2024-05-01 09:15:42] > AT+ID (Took 0.100 sec)\n" +
		"Response: \n\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteLog_Formats(t *testing.T) {
	var js, txt bytes.Buffer
	require.NoError(t, WriteLog(&js, sampleEntries(), LogFormatAuto))
	require.NoError(t, WriteLog(&txt, sampleEntries(), LogFormatText))
	assert.True(t, strings.HasPrefix(js.String(), "["))
	assert.True(t, strings.HasPrefix(txt.String(), "[2024-05-01 09:15:42] Connected"))

	require.ErrorIs(t, WriteLog(&js, nil, LogFormat(42)), ErrUnknownFormat)
}

func TestLogFormatForPath(t *testing.T) {
	assert.Equal(t, LogFormatJSON, logFormatForPath("run.json"))
	assert.Equal(t, LogFormatJSON, logFormatForPath("RUN.JSON"))
	assert.Equal(t, LogFormatText, logFormatForPath("run.log"))
	assert.Equal(t, LogFormatText, logFormatForPath("run"))

	f, err := ParseLogFormat("TXT")
	require.NoError(t, err)
	assert.Equal(t, LogFormatText, f)
	_, err = ParseLogFormat("csv")
	require.ErrorIs(t, err, ErrUnknownFormat)
}
