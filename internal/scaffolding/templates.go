package scaffolding

import (
	"fmt"
	"strings"
)

// Template is a project template for `tspack create`.
type Template int

const (
	TemplateBasic Template = iota
	TemplateReact
)

// Templates lists every template in display order.
var Templates = []Template{TemplateBasic, TemplateReact}

// String returns the template name used on the command line.
func (t Template) String() string {
	switch t {
	case TemplateBasic:
		return "basic"
	case TemplateReact:
		return "react"
	default:
		return fmt.Sprintf("Template(%d)", int(t))
	}
}

// Description is a one-line summary for help output.
func (t Template) Description() string {
	switch t {
	case TemplateBasic:
		return "TypeScript library with vitest"
	case TemplateReact:
		return "React component library with vitest and testing-library"
	default:
		return ""
	}
}

// ParseTemplate maps a command-line name to a template.
func ParseTemplate(name string) (Template, error) {
	for _, t := range Templates {
		if strings.EqualFold(name, t.String()) {
			return t, nil
		}
	}
	names := make([]string, len(Templates))
	for i, t := range Templates {
		names[i] = t.String()
	}
	return 0, fmt.Errorf("unknown template %q (available: %s)", name, strings.Join(names, ", "))
}

// TemplateContext holds the values substituted into template files.
type TemplateContext struct {
	Name       string // package name as written in package.json
	SafeName   string // directory and file stem
	GlobalName string // UMD global
	Year       int
	Author     string
}

// File is one generated file, its content a text/template.
type File struct {
	Path    string
	Content string
}

// files returns the files of a template. The switch is exhaustive over
// Templates; TestEveryTemplateHasFiles guards new additions.
func (t Template) files() []File {
	switch t {
	case TemplateBasic:
		return append(commonFiles(false), basicFiles...)
	case TemplateReact:
		return append(commonFiles(true), reactFiles...)
	default:
		return nil
	}
}

// dependencies returns the devDependencies and peerDependencies to add.
func (t Template) dependencies() (dev, peer map[string]string) {
	dev = map[string]string{
		"typescript": "^5.4.0",
		"vitest":     "^1.6.0",
		"eslint":     "^8.57.0",
	}
	switch t {
	case TemplateBasic:
		return dev, nil
	case TemplateReact:
		dev["react"] = "^18.3.0"
		dev["react-dom"] = "^18.3.0"
		dev["@types/react"] = "^18.3.0"
		dev["@testing-library/react"] = "^15.0.0"
		dev["jsdom"] = "^24.0.0"
		return dev, map[string]string{"react": ">=17"}
	default:
		return dev, nil
	}
}

func commonFiles(jsx bool) []File {
	tsconfig := tsconfigTemplate
	if jsx {
		tsconfig = strings.Replace(tsconfig, `"strict": true,`, `"strict": true,
    "jsx": "react-jsx",`, 1)
	}
	return []File{
		{Path: "tsconfig.json", Content: tsconfig},
		{Path: ".gitignore", Content: gitignoreTemplate},
		{Path: "README.md", Content: readmeTemplate},
		{Path: ".tspack.yml", Content: configTemplate},
	}
}

const tsconfigTemplate = `{
  "include": ["src"],
  "compilerOptions": {
    "target": "es2019",
    "module": "esnext",
    "moduleResolution": "bundler",
    "lib": ["dom", "esnext"],
    "declaration": true,
    "sourceMap": true,
    "strict": true,
    "esModuleInterop": true,
    "skipLibCheck": true,
    "forceConsistentCasingInFileNames": true,
    "noEmit": false
  }
}
`

const gitignoreTemplate = `node_modules
dist
coverage
.env
*.log
`

const readmeTemplate = `# {{.Name}}

Built with tspack.

## Commands

- ` + "`tspack watch`" + ` rebuilds on every change
- ` + "`tspack build`" + ` bundles to ` + "`dist/`" + `
- ` + "`tspack test`" + ` runs the test suite
- ` + "`tspack lint`" + ` lints ` + "`src/`" + `
`

const configTemplate = `build:
  out_dir: dist
  target: browser
  sourcemap: true
  declaration: true
watch:
  debounce: 100ms
`

var basicFiles = []File{
	{Path: "src/index.ts", Content: `export const sum = (a: number, b: number): number => {
  if ('development' === process.env.NODE_ENV) {
    console.log('boop');
  }
  return a + b;
};
`},
	{Path: "test/index.test.ts", Content: `import { describe, expect, it } from 'vitest';
import { sum } from '../src';

describe('sum', () => {
  it('adds two numbers', () => {
    expect(sum(1, 1)).toEqual(2);
  });
});
`},
}

var reactFiles = []File{
	{Path: "src/index.tsx", Content: `import * as React from 'react';

export interface ThingProps {
  children?: React.ReactNode;
}

export const Thing = ({ children }: ThingProps) => {
  return <div>{children || 'the snozzberries taste like snozzberries'}</div>;
};
`},
	{Path: "test/index.test.tsx", Content: `// @vitest-environment jsdom
import * as React from 'react';
import { render } from '@testing-library/react';
import { describe, expect, it } from 'vitest';
import { Thing } from '../src';

describe('Thing', () => {
  it('renders without crashing', () => {
    const { container } = render(<Thing />);
    expect(container.textContent).toContain('snozzberries');
  });
});
`},
}
