package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/inkframe/internal/config"
	"github.com/kalambet/inkframe/internal/display"
	"github.com/kalambet/inkframe/internal/render"
)

// --- displays ---

var displaysCmd = &cobra.Command{
	Use:   "displays",
	Short: "Manage display profiles",
}

var displaysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known display profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/api/displays")
		if err != nil {
			return err
		}

		var records []struct {
			Name       string `json:"name"`
			IsCustom   bool   `json:"is_custom"`
			ModifiedAt string `json:"modified_at"`
		}
		if err := decodeJSON(resp, &records); err != nil {
			return err
		}

		for _, r := range records {
			tier := "default"
			if r.IsCustom {
				tier = "custom"
			}
			fmt.Printf("%s  %s\n", colorize(colorCyan, fmt.Sprintf("%-20s", r.Name)), tier)
		}
		return nil
	},
}

var displaysShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Print a display profile's configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/api/displays/" + args[0] + "/config")
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
		}

		_, err = io.Copy(os.Stdout, resp.Body)
		return err
	},
}

var displaysDuplicateCmd = &cobra.Command{
	Use:   "duplicate <name> <new-name>",
	Short: "Copy a display profile under a new name",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/api/displays/"+args[0]+"/duplicate", map[string]string{"new_name": args[1]})
		if err != nil {
			return err
		}

		var rec struct {
			Name string `json:"name"`
		}
		if err := decodeJSON(resp, &rec); err != nil {
			return err
		}
		printSuccess("Created display profile %s", rec.Name)
		return nil
	},
}

var displaysResetCmd = &cobra.Command{
	Use:   "reset <name>",
	Short: "Discard a profile's customizations and restore the default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/api/displays/"+args[0]+"/reset", nil)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Reset %s to its default configuration", args[0])
		return nil
	},
}

func init() {
	displaysCmd.AddCommand(displaysListCmd)
	displaysCmd.AddCommand(displaysShowCmd)
	displaysCmd.AddCommand(displaysDuplicateCmd)
	displaysCmd.AddCommand(displaysResetCmd)
}

// --- images ---

var imagesCmd = &cobra.Command{
	Use:   "images",
	Short: "Browse and manage the gallery",
}

var imagesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored images",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/api/images")
		if err != nil {
			return err
		}

		var images []struct {
			Filename string   `json:"filename"`
			Title    string   `json:"title"`
			Tags     []string `json:"tags"`
		}
		if err := decodeJSON(resp, &images); err != nil {
			return err
		}

		if len(images) == 0 {
			fmt.Println("No images stored.")
			return nil
		}
		for _, img := range images {
			line := colorize(colorCyan, fmt.Sprintf("%-30s", img.Filename))
			if img.Title != "" {
				line += "  " + img.Title
			}
			if len(img.Tags) > 0 {
				line += "  " + colorize(colorYellow, "["+strings.Join(img.Tags, ", ")+"]")
			}
			fmt.Println(line)
		}
		return nil
	},
}

var imagesDeleteCmd = &cobra.Command{
	Use:   "delete <filename>",
	Short: "Delete a stored image and its metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete("/api/images/" + args[0])
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Deleted %s", args[0])
		return nil
	},
}

var imagesTagCmd = &cobra.Command{
	Use:   "tag <filename> <tag>",
	Short: "Attach a tag to an image",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/api/metadata/"+args[0]+"/tags", map[string]string{"tag": args[1]})
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Tagged %s with %q", args[0], args[1])
		return nil
	},
}

var imagesUntagCmd = &cobra.Command{
	Use:   "untag <filename> <tag>",
	Short: "Detach a tag from an image",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete("/api/metadata/" + args[0] + "/tags/" + args[1])
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Removed %q from %s", args[1], args[0])
		return nil
	},
}

func init() {
	imagesCmd.AddCommand(imagesListCmd)
	imagesCmd.AddCommand(imagesDeleteCmd)
	imagesCmd.AddCommand(imagesTagCmd)
	imagesCmd.AddCommand(imagesUntagCmd)
}

// --- render ---

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render an image for a display without a running server",
	Long: `Render an image for a display without a running server.

Examples:
  inkframe render --input photo.jpg --display epd7in3f --output out.png
  inkframe render --input photo.jpg --display epd7in5v2 --letterbox --no-dither`,
	RunE: func(cmd *cobra.Command, args []string) error {
		input, _ := cmd.Flags().GetString("input")
		name, _ := cmd.Flags().GetString("display")
		output, _ := cmd.Flags().GetString("output")
		letterbox, _ := cmd.Flags().GetBool("letterbox")
		noDither, _ := cmd.Flags().GetBool("no-dither")

		if input == "" || name == "" {
			return fmt.Errorf("--input and --display are required")
		}
		if output == "" {
			ext := filepath.Ext(input)
			output = strings.TrimSuffix(input, ext) + "_" + name + ".png"
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		displays := display.NewStore(filepath.Join(cfg.Storage.DataDir, "displays"))
		profile, err := displays.Load(name)
		if err != nil {
			return fmt.Errorf("loading display %q: %w", name, err)
		}

		src, err := os.ReadFile(input)
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}

		printStep("Rendering %s for %s (%dx%d)...", input, name, profile.Width, profile.Height)
		out, err := render.Transform(src, profile, render.Options{
			Dither: !noDither,
			Resize: true,
			Crop:   !letterbox,
		})
		if err != nil {
			return fmt.Errorf("rendering: %w", err)
		}

		if err := os.WriteFile(output, out, 0o644); err != nil {
			return fmt.Errorf("writing output: %w", err)
		}
		printSuccess("Wrote %s (%d bytes)", output, len(out))
		return nil
	},
}

func init() {
	renderCmd.Flags().String("input", "", "source image file")
	renderCmd.Flags().String("display", "", "display profile name")
	renderCmd.Flags().String("output", "", "output file path (default: <input>_<display>.png)")
	renderCmd.Flags().Bool("letterbox", false, "fit with black borders instead of crop-to-fill")
	renderCmd.Flags().Bool("no-dither", false, "disable Floyd-Steinberg dithering")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
