package mcp

import "strings"

// findJSONObjectStart 查找回复中意见JSON对象的真实起始位置
// 避免误判思维链文字里的花括号
func findJSONObjectStart(response string) int {
	// 策略1: 代码块中的JSON (```json\n{ 或 ```\n{)
	for _, pattern := range []string{"```json\n{", "```\n{"} {
		if idx := strings.Index(response, pattern); idx != -1 {
			return idx + len(pattern) - 1
		}
	}

	// 策略2: 独立成行的 {
	currentPos := 0
	for _, line := range strings.Split(response, "\n") {
		trimmed := strings.TrimSpace(line)
		if len(trimmed) > 0 && trimmed[0] == '{' {
			return currentPos + strings.Index(line, "{")
		}
		currentPos += len(line) + 1
	}

	// 策略3: 回退到第一个 {
	return strings.Index(response, "{")
}

// findMatchingBrace 从start处的 { 开始匹配对应的 }
// 跳过字符串字面量内部的花括号
func findMatchingBrace(s string, start int) int {
	if start < 0 || start >= len(s) || s[start] != '{' {
		return -1
	}
	depth := 0
	inString := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch ch {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// fixMissingQuotes 修复常见的JSON格式错误
// 例: "reasoning": 多头排列但量能不足}  →  "reasoning": "多头排列但量能不足"}
func fixMissingQuotes(jsonStr string) string {
	// 中文引号换成英文引号
	jsonStr = strings.ReplaceAll(jsonStr, "“", "\"")
	jsonStr = strings.ReplaceAll(jsonStr, "”", "\"")
	jsonStr = strings.ReplaceAll(jsonStr, "‘", "'")
	jsonStr = strings.ReplaceAll(jsonStr, "’", "'")

	lines := strings.Split(jsonStr, "\n")
	for i, line := range lines {
		idx := strings.Index(line, "\":")
		if idx == -1 {
			continue
		}

		afterColon := idx + 2
		for afterColon < len(line) && (line[afterColon] == ' ' || line[afterColon] == '\t') {
			afterColon++
		}
		if afterColon >= len(line) {
			continue
		}

		ch := line[afterColon]
		isValidStart := ch == '"' || ch == '{' || ch == '[' ||
			ch == 't' || ch == 'f' || ch == 'n' ||
			(ch >= '0' && ch <= '9') || ch == '-'
		if isValidStart {
			continue
		}

		// 值没带引号：截到 , } " 为止补上
		valueEnd := afterColon
		for valueEnd < len(line) {
			if line[valueEnd] == ',' || line[valueEnd] == '}' || line[valueEnd] == '"' {
				break
			}
			valueEnd++
		}
		before := line[:afterColon]
		value := strings.ReplaceAll(strings.TrimSpace(line[afterColon:valueEnd]), "\"", "\\\"")
		lines[i] = before + "\"" + value + "\"" + line[valueEnd:]
	}
	return strings.Join(lines, "\n")
}
