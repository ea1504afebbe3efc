package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle = lipgloss.NewStyle().Width(18).Foreground(lipgloss.Color("8"))
	valueStyle = lipgloss.NewStyle().Bold(true)
)

// field is one label/value line in a report.
type field struct {
	label string
	value any
}

func printReport(title string, fields []field) {
	fmt.Println(titleStyle.Render(title))
	for _, f := range fields {
		fmt.Println(labelStyle.Render(f.label) + valueStyle.Render(fmt.Sprint(f.value)))
	}
}
