package sse_test

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/hearth/internal/sse"
)

func TestScanner_ReadsEvents(t *testing.T) {
	stream := "data: {\"a\":1}\n\n" +
		": keep-alive comment\n" +
		"event: message\n" +
		"data: {\"b\":2}\n\n" +
		"data: [DONE]\n\n"

	scanner := sse.NewScanner(strings.NewReader(stream))

	payload, err := scanner.Next()
	require.NoError(t, err)
	require.Equal(t, `{"a":1}`, payload)

	payload, err = scanner.Next()
	require.NoError(t, err)
	require.Equal(t, `{"b":2}`, payload)

	_, err = scanner.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestScanner_JoinsMultilineData(t *testing.T) {
	stream := "data: line one\ndata: line two\n\n"

	scanner := sse.NewScanner(strings.NewReader(stream))

	payload, err := scanner.Next()
	require.NoError(t, err)
	require.Equal(t, "line one\nline two", payload)
}

func TestScanner_FlushesTrailingEventWithoutBlankLine(t *testing.T) {
	scanner := sse.NewScanner(strings.NewReader("data: tail"))

	payload, err := scanner.Next()
	require.NoError(t, err)
	require.Equal(t, "tail", payload)

	_, err = scanner.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestScanner_EmptyStream(t *testing.T) {
	scanner := sse.NewScanner(strings.NewReader(""))

	_, err := scanner.Next()
	require.ErrorIs(t, err, io.EOF)
}
