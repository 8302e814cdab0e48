// Сборка и публикация образа портала.
//
// Функции вызываются из dagger CLI: Build собирает бинарник cmd/portal под amd64 и arm64,
// Docs генерирует справочники из go:generate, BuildApp публикует образы с тегом версии и latest.

package main

import (
	"context"
	"dagger/portal/internal/dagger"
	"fmt"
)

type Portal struct{}

func (m *Portal) GoBuildEnv(source *dagger.Directory) *dagger.Container {
	goCache := dag.CacheVolume("go")
	return dag.Container().
		From("golang:alpine").
		WithDirectory("/src", source).
		WithWorkdir("/src").
		WithEnvVariable("GOOS", "linux").
		WithEnvVariable("CGO_ENABLED", "0").
		WithMountedCache("/go/pkg/mod", goCache).
		WithExec([]string{"go", "mod", "download"})
}

// Test прогоняет тесты модуля. SQLite без cgo, отдельная база не нужна.
func (m *Portal) Test(ctx context.Context, source *dagger.Directory) (string, error) {
	return m.GoBuildEnv(source).
		WithExec([]string{"go", "test", "./..."}).
		Stdout(ctx)
}

// Docs возвращает каталог docs/ со справочниками ошибок API и узлов документа.
func (m *Portal) Docs(source *dagger.Directory) *dagger.Directory {
	return m.GoBuildEnv(source).
		WithExec([]string{"mkdir", "-p", "docs"}).
		WithExec([]string{"go", "generate", "./internal/portal/..."}).
		Directory("/src/docs")
}

func (m *Portal) BackEnv(platform dagger.Platform, appBin *dagger.File) *dagger.Container {
	return dag.Container(dagger.ContainerOpts{
		Platform: platform,
	}).
		From("alpine").
		WithEnvVariable("TZ", "America/Sao_Paulo").
		WithExec([]string{"apk", "add", "--no-cache", "tzdata"}).
		WithWorkdir("/app").
		WithFile("/app/portal", appBin).
		WithEnvVariable("LOCAL_STORAGE_PATH", "/app/uploads").
		WithEntrypoint([]string{"/app/portal"})
}

func (m *Portal) Build(version string, source *dagger.Directory) []*dagger.Container {
	buildMatrix := []struct {
		Arch     string
		BinName  string
		Platform dagger.Platform
	}{
		{
			Arch:     "amd64",
			BinName:  "/build/portal-linux",
			Platform: dagger.Platform("linux/amd64"),
		},
		{
			Arch:     "arm64",
			BinName:  "/build/portal-linux-arm64",
			Platform: dagger.Platform("linux/arm64/v8"),
		},
	}

	var images []*dagger.Container
	for _, buildParam := range buildMatrix {
		builder := m.GoBuildEnv(source).
			WithEnvVariable("GOARCH", buildParam.Arch).
			WithExec([]string{"go", "build", "-o", buildParam.BinName, "-ldflags", fmt.Sprintf("-s -w -X main.version=%s", version), "cmd/portal/main.go"})

		image := m.BackEnv(buildParam.Platform, builder.File(buildParam.BinName)).
			WithLabel("org.opencontainers.image.source", "https://github.com/comunidadeds/portal").
			WithAnnotation("org.opencontainers.image.source", "https://github.com/comunidadeds/portal")
		images = append(images, image)
	}
	return images
}

func (m *Portal) Publish(
	ctx context.Context,
	images []*dagger.Container,
	registrySecret *dagger.Secret,
	registryUser string,
	imageName string,
) (string, error) {
	return dag.Container().
		WithRegistryAuth("ghcr.io", registryUser, registrySecret).
		Publish(ctx, "ghcr.io/"+imageName, dagger.ContainerPublishOpts{PlatformVariants: images})
}

func (m *Portal) Export(
	ctx context.Context,
	images []*dagger.Container,
	imageName string,
) (string, error) {
	return dag.Container().
		Export(ctx, imageName, dagger.ContainerExportOpts{PlatformVariants: images})
}

func (m *Portal) BuildLocal(ctx context.Context, name string, source *dagger.Directory) (string, error) {
	return m.Export(ctx, m.Build("v0.1.0", source), name)
}

func (m *Portal) BuildApp(ctx context.Context, version string, source *dagger.Directory,
	registrySecret *dagger.Secret,
	registryUser string,
	imageName string,
) error {
	if _, err := m.Test(ctx, source); err != nil {
		return err
	}

	back := m.Build(version, source)

	for _, tag := range []string{version, "latest"} {
		ref, err := m.Publish(ctx, back, registrySecret, registryUser, fmt.Sprintf("%s:%s", imageName, tag))
		if err != nil {
			return err
		}
		fmt.Println(ref)
	}
	return nil
}
