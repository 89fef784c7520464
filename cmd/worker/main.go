package main

import (
	"log"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/helixhq/registry/internal/activities"
	"github.com/helixhq/registry/internal/clients"
	"github.com/helixhq/registry/internal/config"
	"github.com/helixhq/registry/internal/logger"
	"github.com/helixhq/registry/internal/workflows"
)

func main() {
	cfg := config.Load()
	logg := logger.New(cfg.LogLevel, cfg.LogFormat)

	c, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalHost,
		Namespace: cfg.TemporalNamespace,
	})
	if err != nil {
		log.Fatalln("Unable to create Temporal client", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.TaskQueue, worker.Options{})

	// Register workflows
	w.RegisterWorkflow(workflows.SchemaValidationWorkflow)
	w.RegisterWorkflow(workflows.CodeGenerationWorkflow)

	// Register validation activities
	validationActivities := activities.NewValidationActivities(logg)
	w.RegisterActivity(validationActivities.RunValidation)

	// Register code generation activities backed by object storage
	storageClient, err := clients.NewStorageClient(
		cfg.StorageEndpoint, cfg.StorageAccessKey, cfg.StorageSecretKey,
		cfg.StorageBucket, cfg.StorageUseSSL, logg)
	if err != nil {
		log.Fatalln("Unable to create storage client", err)
	}
	codeGenActivities := activities.NewCodeGenActivities(storageClient, logg)
	w.RegisterActivity(codeGenActivities.GenerateCode)
	w.RegisterActivity(codeGenActivities.PackageArtifact)
	w.RegisterActivity(codeGenActivities.UploadArtifact)

	// Job outcomes go back to the registry server over its internal HTTP API
	callbackClient := clients.NewCallbackClient(cfg.ServerURL, logg)
	reportActivities := activities.NewReportActivities(callbackClient, logg)
	w.RegisterActivity(reportActivities.ReportValidation)
	w.RegisterActivity(reportActivities.ReportGeneration)

	logg.Info("Starting registry worker",
		"temporal", cfg.TemporalHost,
		"namespace", cfg.TemporalNamespace,
		"task_queue", cfg.TaskQueue,
		"server_url", cfg.ServerURL)

	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalln("Unable to start worker", err)
	}
}
