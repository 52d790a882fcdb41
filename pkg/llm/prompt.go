package llm

import (
	"fmt"
	"strings"

	"gitreport/pkg/commit"
)

// SystemPrompt is sent as the system message with every report request.
const SystemPrompt = "你是一个高效的日报生成助手。"

// The instruction template surrounds the rendered commit list. Its
// whitespace is part of the prompt and must not be reformatted.
const (
	promptHead = `
    你是一个资深的技术项目经理。请根据以下 GitHub 提交记录，写一份专业的日报/周报。
    提交记录：
    `
	promptTail = `
    
    要求：
    1. 使用中文。
    2. 语言精炼，言简意赅。
    3. 语气专业、简洁。
    4. 分几点列出具体内容。
    5. 简洁的直接列出工作内容，不需要使用 Markdown，不要写多余的内容
    6. 只用写具体工作内容，不用写目标或者目的
    例如： 
    1.新增/修改上游企业时将地址、省、市、区、县修改为必填项。在供应商为自然人时，新增身份证号字段，且为必填项
    2.修复原车牌号和入场车牌号字段显示问题
    3.参考孝感易达云平台编写新的“采购、销售云平台台账”
  `
)

// FormatCommits renders one line per commit as "- {date}: {message} (by {author})".
func FormatCommits(commits []commit.Commit) string {
	lines := make([]string, 0, len(commits))
	for _, c := range commits {
		lines = append(lines, fmt.Sprintf("- %s: %s (by %s)", c.Date, c.Message, c.Author))
	}
	return strings.Join(lines, "\n")
}

// BuildPrompt returns the user message for a report over commits.
func BuildPrompt(commits []commit.Commit) string {
	return promptHead + FormatCommits(commits) + promptTail
}

// Messages returns the system and user messages for a report.
func Messages(commits []commit.Commit) []ChatMessage {
	return []ChatMessage{
		{Role: "system", Content: SystemPrompt},
		{Role: "user", Content: BuildPrompt(commits)},
	}
}
