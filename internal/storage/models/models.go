package models

import "time"

// IngestionRun is one processed file as recorded in the ingestion log.
type IngestionRun struct {
	ID             int64
	FileName       string
	Status         string
	PairsExtracted int
	ProcessingTime time.Duration
	CreatedAt      time.Time
}

// EvaluationRun summarises one answer-quality evaluation over a dataset.
type EvaluationRun struct {
	ID               int64
	Dataset          string
	Questions        int
	MeanSimilarity   float64
	MeanLexical      float64
	MeanConfidence   float64
	NoSourcesAnswers int
	FailedAnswers    int
	CreatedAt        time.Time
}
