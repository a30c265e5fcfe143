package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// DisplayAnalysis prints the bundle analysis of one function
func DisplayAnalysis(w io.Writer, result *AnalysisResult, showDetails bool) {
	_, _ = fmt.Fprintf(w, "\n=== Bundle Analysis: %s ===\n", result.FunctionName)
	_, _ = fmt.Fprintf(w, "Total bundle size: %s\n", FormatBytes(result.TotalBytes))

	if len(result.ExternalImports) > 0 {
		_, _ = fmt.Fprintln(w, "\nExternal imports (resolved at runtime):")
		for _, imp := range result.ExternalImports {
			_, _ = fmt.Fprintf(w, "  - %s\n", imp)
		}
	}

	if len(result.InputFiles) > 0 {
		_, _ = fmt.Fprintln(w, "\nBundle breakdown:")

		maxFiles := 10
		if showDetails {
			maxFiles = len(result.InputFiles)
		}

		maxPathLen := 0
		for i, file := range result.InputFiles {
			if i >= maxFiles {
				break
			}
			if l := len(truncatePath(file.Path, 50)); l > maxPathLen {
				maxPathLen = l
			}
		}

		for i, file := range result.InputFiles {
			if i >= maxFiles {
				_, _ = fmt.Fprintf(w, "  ... and %d more files\n", len(result.InputFiles)-maxFiles)
				break
			}

			displayPath := truncatePath(file.Path, 50)
			padding := strings.Repeat(" ", maxPathLen-len(displayPath))
			_, _ = fmt.Fprintf(w, "  %s%s  %8s  %5.1f%%\n",
				displayPath,
				padding,
				FormatBytes(file.BytesInOutput),
				file.Percentage,
			)
		}
	}

	_, _ = fmt.Fprintln(w)
}

// DisplaySummary prints one line per analyzed function, largest first
func DisplaySummary(w io.Writer, results []*AnalysisResult) {
	if len(results) == 0 {
		return
	}

	sorted := make([]*AnalysisResult, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].TotalBytes > sorted[j].TotalBytes
	})

	_, _ = fmt.Fprintln(w, "\n=== Bundle Size Summary ===")

	maxNameLen := 8 // "FUNCTION"
	for _, r := range sorted {
		if len(r.FunctionName) > maxNameLen {
			maxNameLen = len(r.FunctionName)
		}
	}

	namePadding := strings.Repeat(" ", maxNameLen-8)
	_, _ = fmt.Fprintf(w, "FUNCTION%s  BUNDLE SIZE  FILES  EXTERNALS\n", namePadding)
	_, _ = fmt.Fprintf(w, "%s  -----------  -----  ---------\n", strings.Repeat("-", maxNameLen))

	var totalSize int
	for _, r := range sorted {
		totalSize += r.TotalBytes
		padding := strings.Repeat(" ", maxNameLen-len(r.FunctionName))
		_, _ = fmt.Fprintf(w, "%s%s  %11s  %5d  %9d\n",
			r.FunctionName,
			padding,
			FormatBytes(r.TotalBytes),
			len(r.InputFiles),
			len(r.ExternalImports),
		)
	}

	_, _ = fmt.Fprintf(w, "%s  -----------  -----  ---------\n", strings.Repeat("-", maxNameLen))
	_, _ = fmt.Fprintf(w, "TOTAL%s  %11s\n", strings.Repeat(" ", maxNameLen-5), FormatBytes(totalSize))
	_, _ = fmt.Fprintln(w)
}

// FormatBytes formats bytes in human-readable form
func FormatBytes(bytes int) string {
	const (
		KB = 1024
		MB = 1024 * KB
	)
	switch {
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	return "..." + path[len(path)-maxLen+3:]
}
