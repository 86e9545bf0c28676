package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/suyashkumar/dicom"
)

// StatusTUI shows what is waiting in the scan directory and what was
// moved to done already. Selecting a series renders one of its slices.
type StatusTUI struct {
	scandir   string
	viewer    *tview.TextView
	summary   *tview.TextView
	selection *tview.TreeView
	app       *tview.Application
	flex      *tview.Flex
}

// addSubjectNodes lists the scan sub-directories of every subject under
// root as tree nodes. The node reference is the series directory path.
func (statusTUI *StatusTUI) addSubjectNodes(parent *tview.TreeNode, root string) {
	subjects, err := listDirs(root)
	if err != nil {
		return
	}
	for _, slabel := range subjects {
		node := tview.NewTreeNode(fmt.Sprintf("%s", slabel)).SetSelectable(false)
		parent.AddChild(node)
		scansdir := filepath.Join(root, slabel, "scans")
		subdirs, err := listDirs(scansdir)
		if err != nil {
			node.SetText(fmt.Sprintf("%s [red](no scans directory)", slabel))
			continue
		}
		for _, subdr := range subdirs {
			dcmPath := filepath.Join(scansdir, subdr)
			files, _ := listFiles(dcmPath)
			label := fmt.Sprintf("series %s, %d file(s)", subdr, len(files))
			if len(files) > 0 {
				if meta, err := readTags(files[0]); err == nil {
					label = fmt.Sprintf("series %s, %d file(s) [blue]%s", subdr, len(files), classifyScan(meta))
				}
			}
			node2 := tview.NewTreeNode(label).
				SetReference(dcmPath).
				SetSelectable(true)
			node.AddChild(node2)
		}
	}
}

func (statusTUI *StatusTUI) Init() {
	if _, err := os.Stat(statusTUI.scandir); os.IsNotExist(err) {
		exitGracefully(fmt.Errorf("the data directory %s does not exist", statusTUI.scandir))
	}
	newPrimitive := func(text string) *tview.TextView {
		return tview.NewTextView().
			SetTextAlign(tview.AlignLeft).
			SetText(text)
	}
	statusTUI.summary = newPrimitive("")
	statusTUI.summary.SetBorder(true).SetTitle("Current selection")
	statusTUI.viewer = newPrimitive("")
	statusTUI.viewer.SetBorder(true).SetTitle("DICOM")
	statusTUI.selection = tview.NewTreeView()
	statusTUI.selection.SetBorder(true)
	statusTUI.selection.SetTitle("Scan directories")

	statusTUI.flex = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(tview.NewFlex().SetDirection(tview.FlexColumn).
			AddItem(statusTUI.summary, 30, 1, false).
			AddItem(statusTUI.viewer, 0, 1, true), 0, 1, false).
		AddItem(statusTUI.selection, 12, 1, false)

	root := tview.NewTreeNode("Status").SetReference("")
	statusTUI.selection.SetRoot(root).SetCurrentNode(root)

	pending := tview.NewTreeNode("Pending").SetSelectable(false)
	root.AddChild(pending)
	statusTUI.addSubjectNodes(pending, statusTUI.scandir)

	donepath := filepath.Join(filepath.Dir(filepath.Clean(statusTUI.scandir)), "done")
	done := tview.NewTreeNode("Done").SetSelectable(false)
	root.AddChild(done)
	statusTUI.addSubjectNodes(done, donepath)

	statusTUI.selection.SetSelectedFunc(func(node *tview.TreeNode) {
		dcmPath := node.GetReference().(string)
		if len(dcmPath) == 0 {
			return
		}
		files, err := listFiles(dcmPath)
		if err != nil || len(files) == 0 {
			statusTUI.summary.SetText("this directory contains no files")
			return
		}
		meta, err := readTags(files[0])
		if err != nil {
			statusTUI.summary.SetText(fmt.Sprintf("not a DICOM file:\n%s", files[0]))
			return
		}
		statusTUI.summary.Clear()
		fmt.Fprintf(statusTUI.summary, "%s\nSOPClassUID: %s\nSeriesNumber: %s\nModality: %s\nOwner: %s\nSeriesDate: %s %s\n",
			classifyScan(meta), meta.SOPClassUID, meta.SeriesNumber, meta.Modality,
			meta.RequestedProcedureDescription, meta.SeriesDate, meta.SeriesTime)
		statusTUI.viewer.Clear()
		if dataset, err := dicom.ParseFile(files[0], nil); err == nil {
			renderDataset(dataset, statusTUI.viewer)
		}
		statusTUI.viewer.SetTitle(fmt.Sprintf("DICOM %s", filepath.Base(files[0])))
	})

	statusTUI.Run()
}

func (statusTUI *StatusTUI) Run() {
	statusTUI.app = tview.NewApplication()

	statusTUI.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyRune && event.Rune() == rune('q') {
			statusTUI.app.Stop()
		}
		return event
	})

	if err := statusTUI.app.SetRoot(statusTUI.flex, true).SetFocus(statusTUI.selection).EnableMouse(true).Run(); err != nil {
		fmt.Println("Error: The status mode is only available in a propper terminal.")
		panic(err)
	}
	defer statusTUI.app.Stop()
}
