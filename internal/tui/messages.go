package tui

import (
	"github.com/Veraticus/browser2excel/internal/pipeline"
	"github.com/Veraticus/browser2excel/internal/relay"
)

type batchLoadedMsg struct {
	err    error
	source string
	rows   []pipeline.Row
}

type rowAddedMsg struct {
	err      error
	batch    int
	id       int
	position int
}

type highlightSentMsg struct {
	err error
	id  int
}

type statusMsg struct {
	status relay.Status
}

type clearNoticeMsg struct {
	seq int
}
