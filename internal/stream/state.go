package stream

import (
	"sort"

	"github.com/yhw2003/claude-openai-bridge/internal/types"
)

// toolCallState 单个上游工具调用的流式状态
type toolCallState struct {
	id          string
	name        string
	argsBuffer  string
	jsonSent    bool
	claudeIndex int
	started     bool
}

// State 单次流式响应的全部状态
// 文本块固定占用 index 0，工具块和 thinking 块从 1 开始连续分配
type State struct {
	textBlockIndex   int
	toolBlockCounter int
	toolCalls        map[int]*toolCallState

	thinkingRequested  bool
	thinkingStarted    bool
	sawThinkingDelta   bool
	thinkingBlockIndex int

	finalStopReason string
	usage           types.Usage
}

// NewState 新建流式状态
func NewState(thinkingRequested bool) *State {
	return &State{
		textBlockIndex:     0,
		toolCalls:          map[int]*toolCallState{},
		thinkingRequested:  thinkingRequested,
		thinkingBlockIndex: -1,
		finalStopReason:    types.StopEndTurn,
	}
}

// tool 返回（必要时创建）指定上游 index 的工具状态
func (s *State) tool(toolIndex int) *toolCallState {
	state, ok := s.toolCalls[toolIndex]
	if !ok {
		state = &toolCallState{}
		s.toolCalls[toolIndex] = state
	}
	return state
}

// nextBlockIndex 分配下一个非文本块的 Claude index
func (s *State) nextBlockIndex() int {
	s.toolBlockCounter++
	return s.textBlockIndex + s.toolBlockCounter
}

// startedBlockIndexes 已开启的非文本块 index，升序即开启顺序
func (s *State) startedBlockIndexes() []int {
	var indexes []int
	if s.thinkingStarted && s.thinkingBlockIndex >= 0 {
		indexes = append(indexes, s.thinkingBlockIndex)
	}
	for _, tool := range s.toolCalls {
		if tool.started {
			indexes = append(indexes, tool.claudeIndex)
		}
	}
	sort.Ints(indexes)
	return indexes
}
