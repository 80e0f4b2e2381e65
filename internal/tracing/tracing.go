// Package tracing 安裝 OpenTelemetry tracer provider
//
// simulator 以 otel.Tracer 建立 "simulator.tick" span；沒有呼叫 Init 時
// 全域 provider 是 no-op，span 不會輸出。
package tracing

import (
	"context"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ShutdownFunc flush 並關閉 provider
type ShutdownFunc func(ctx context.Context) error

func noopShutdown(context.Context) error { return nil }

// Init 以 stdout exporter 設定全域 tracer provider
//
// outputFile 為空時寫到 os.Stdout，否則寫到指定檔案（覆寫）。
func Init(serviceName, serviceVersion, outputFile string) (ShutdownFunc, error) {
	var w io.Writer = os.Stdout
	var file *os.File
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return noopShutdown, err
		}
		w, file = f, f
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		if file != nil {
			file.Close()
		}
		return noopShutdown, err
	}

	shutdown, err := InitWithExporter(serviceName, serviceVersion, exporter)
	if err != nil || file == nil {
		return shutdown, err
	}
	return func(ctx context.Context) error {
		err := shutdown(ctx)
		if cerr := file.Close(); err == nil {
			err = cerr
		}
		return err
	}, nil
}

// InitWithExporter 以指定 exporter 設定全域 tracer provider
func InitWithExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) (ShutdownFunc, error) {
	if exporter == nil {
		return noopShutdown, nil
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", serviceVersion),
		),
	)
	if err != nil {
		return noopShutdown, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}
