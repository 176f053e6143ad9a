package document

import "path/filepath"

const (
	DefaultRootFolder = "ATS_hacking"

	exampleResume = "Resume-bruce_wayne_fullstack.pdf0226714c-ea33-4486-ab77-87bf74f00fe6.json"
	exampleJob    = "JobDescription-job_desc_front_end_engineer.pdfb1f803b0-da48-4d16-b7a4-1f3564b98c58.json"
)

// Layout describes where processed data lives under the project root.
type Layout struct {
	Root string
}

func (l Layout) Resumes() string {
	return filepath.Join(l.Root, "Data", "Processed", "Resumes")
}

func (l Layout) JobDescriptions() string {
	return filepath.Join(l.Root, "Data", "Processed", "JobDescription")
}

func (l Layout) ConfigFile() string {
	return filepath.Join(l.Root, "scripts", "similarity", "config.yml")
}

// ExampleResume and ExampleJob are the pair scored when nothing is selected.
func (l Layout) ExampleResume() string {
	return filepath.Join(l.Resumes(), exampleResume)
}

func (l Layout) ExampleJob() string {
	return filepath.Join(l.JobDescriptions(), exampleJob)
}
