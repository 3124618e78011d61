package stats

import (
	"bytes"
	"fmt"
	"time"

	"github.com/olekukonko/tablewriter"
)

// Statistics collected while running a lighting build.
type Statistics struct {
	// Export phase timings.
	SceneExportTime    time.Duration
	MaterialExportTime time.Duration

	// Time from opening the job until the first task was accepted.
	SwarmStartupTime time.Duration

	// Time spent waiting for workers.
	ProcessingTime time.Duration

	// Import and apply timings.
	ImportTime time.Duration
	ApplyTime  time.Duration

	TotalTime time.Duration

	// Accumulated time reported by workers for the imported mappings.
	WorkerExecutionTime time.Duration

	// Exported entity counters.
	NumLights    int
	NumMeshes    int
	NumMaterials int
	NumMappings  int

	// Task counters.
	NumTasks       int
	NumFailedTasks int

	// Imported mapping counters.
	NumImportedMappings int
	NumAppliedMappings  int
	NumTexels           int
	NumUnmappedTexels   int
}

// Record the coverage of an imported lightmap.
func (s *Statistics) AddMappingTexels(total, unmapped int) {
	s.NumImportedMappings++
	s.NumTexels += total
	s.NumUnmappedTexels += unmapped
}

// Get the percentage of imported texels that were not covered by any
// geometry.
func (s *Statistics) UnmappedTexelPercentage() float32 {
	if s.NumTexels == 0 {
		return 0
	}
	return 100 * float32(s.NumUnmappedTexels) / float32(s.NumTexels)
}

// Render the statistics as a table.
func (s *Statistics) Table() string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader([]string{"Phase", "Time"})
	table.AppendBulk([][]string{
		{"Scene export", formatDuration(s.SceneExportTime)},
		{"Material export", formatDuration(s.MaterialExportTime)},
		{"Swarm startup", formatDuration(s.SwarmStartupTime)},
		{"Processing", formatDuration(s.ProcessingTime)},
		{"Import", formatDuration(s.ImportTime)},
		{"Apply", formatDuration(s.ApplyTime)},
		{"Worker execution (sum)", formatDuration(s.WorkerExecutionTime)},
	})
	table.SetFooter([]string{"TOTAL", formatDuration(s.TotalTime)})
	table.Render()

	counters := tablewriter.NewWriter(&buf)
	counters.SetAutoFormatHeaders(false)
	counters.SetAutoWrapText(false)
	counters.SetAlignment(tablewriter.ALIGN_LEFT)
	counters.SetHeader([]string{"Counter", "Value"})
	counters.AppendBulk([][]string{
		{"Lights", fmt.Sprint(s.NumLights)},
		{"Meshes", fmt.Sprint(s.NumMeshes)},
		{"Materials", fmt.Sprint(s.NumMaterials)},
		{"Mappings", fmt.Sprint(s.NumMappings)},
		{"Tasks", fmt.Sprint(s.NumTasks)},
		{"Failed tasks", fmt.Sprint(s.NumFailedTasks)},
		{"Imported mappings", fmt.Sprint(s.NumImportedMappings)},
		{"Applied mappings", fmt.Sprint(s.NumAppliedMappings)},
		{"Texels", fmt.Sprint(s.NumTexels)},
		{"Unmapped texels", fmt.Sprintf("%02.1f %%", s.UnmappedTexelPercentage())},
	})
	counters.Render()

	return buf.String()
}

func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%d ms", d.Nanoseconds()/1e6)
}
