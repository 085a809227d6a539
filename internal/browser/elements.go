package browser

import (
	"context"
	"fmt"
)

// Element is an interactive element as presented to the agent
type Element struct {
	Selector    string   `json:"selector"`
	Type        string   `json:"type"` // button, link, text, email, select, checkbox, radio, combobox, file ...
	Text        string   `json:"text,omitempty"`
	Label       string   `json:"label,omitempty"`
	Placeholder string   `json:"placeholder,omitempty"`
	Value       string   `json:"value,omitempty"`
	Options     []string `json:"options,omitempty"`
	Required    bool     `json:"required,omitempty"`
	Checked     bool     `json:"checked,omitempty"`
	InViewport  bool     `json:"inViewport,omitempty"`
}

// Elements returns up to max visible interactive elements, viewport first
func (b *Browser) Elements(ctx context.Context, max int) ([]Element, error) {
	var elements []Element
	if err := b.Evaluate(ctx, extractElementsJS, &elements, max); err != nil {
		return nil, fmt.Errorf("extract elements: %w", err)
	}
	return elements, nil
}

const extractElementsJS = `(max) => {
	const elements = [];
	const seen = new Set();
	const vh = window.innerHeight;

	function isValidCSSIdent(s) {
		if (!s || s.length === 0) return false;
		if (/^[0-9]/.test(s) || /^-[0-9]/.test(s)) return false;
		if (/[.:#\[\]()>~+*\/\\\s"']/.test(s)) return false;
		return true;
	}

	function getSelector(el) {
		const tagged = el.getAttribute('data-applypilot-id');
		if (tagged) return '[data-applypilot-id="' + tagged + '"]';
		if (el.id && isValidCSSIdent(el.id) && document.querySelectorAll('#' + el.id).length === 1) return '#' + el.id;
		if (el.name && isValidCSSIdent(el.name)) {
			const byName = el.tagName.toLowerCase() + '[name="' + el.name + '"]';
			if (document.querySelectorAll(byName).length === 1) return byName;
		}
		const auto = el.getAttribute('data-automation-id') || el.getAttribute('data-testid');
		if (auto && isValidCSSIdent(auto)) {
			const attr = el.hasAttribute('data-automation-id') ? 'data-automation-id' : 'data-testid';
			const sel = '[' + attr + '="' + auto + '"]';
			if (document.querySelectorAll(sel).length === 1) return sel;
		}
		const parent = el.parentElement;
		if (parent && parent !== document.documentElement) {
			const index = Array.from(parent.children).indexOf(el) + 1;
			return getSelector(parent) + ' > ' + el.tagName.toLowerCase() + ':nth-child(' + index + ')';
		}
		return el.tagName.toLowerCase();
	}

	function visible(el) {
		const r = el.getBoundingClientRect();
		if (r.width === 0 || r.height === 0) return false;
		const s = getComputedStyle(el);
		return s.display !== 'none' && s.visibility !== 'hidden' && s.opacity !== '0';
	}

	function labelFor(el) {
		if (el.labels && el.labels.length) return el.labels[0].innerText.trim();
		const aria = el.getAttribute('aria-label');
		if (aria) return aria.trim();
		const by = el.getAttribute('aria-labelledby');
		if (by) {
			const t = by.split(/\s+/).map(id => document.getElementById(id)).filter(Boolean).map(n => n.innerText.trim()).join(' ');
			if (t) return t;
		}
		return '';
	}

	function push(el, type) {
		if (elements.length >= max || !visible(el)) return;
		const selector = getSelector(el);
		if (seen.has(selector)) return;
		seen.add(selector);
		const r = el.getBoundingClientRect();
		const item = {
			selector: selector,
			type: type,
			text: (el.innerText || el.value || '').trim().slice(0, 60),
			label: labelFor(el).slice(0, 80),
			placeholder: el.placeholder || '',
			required: !!(el.required || el.getAttribute('aria-required') === 'true'),
			checked: !!el.checked,
			inViewport: r.bottom >= 0 && r.top <= vh
		};
		if (type !== 'button' && type !== 'link' && typeof el.value === 'string') item.value = el.value.slice(0, 60);
		if (el.tagName === 'SELECT') item.options = Array.from(el.options).map(o => o.text.trim()).slice(0, 30);
		elements.push(item);
	}

	const all = [];
	document.querySelectorAll('input:not([type="hidden"]), textarea, select, [contenteditable="true"], [role="combobox"], [role="listbox"], [role="radio"], [role="checkbox"], [role="option"]').forEach(el => {
		let type = el.tagName === 'SELECT' ? 'select' : (el.type || el.getAttribute('role') || 'text');
		if (el.isContentEditable && el.tagName !== 'INPUT' && el.tagName !== 'TEXTAREA') type = 'contenteditable';
		all.push([el, type]);
	});
	document.querySelectorAll('button, [role="button"], input[type="submit"], input[type="button"]').forEach(el => all.push([el, 'button']));
	document.querySelectorAll('a[href]').forEach(el => {
		const href = el.getAttribute('href') || '';
		if (href.startsWith('javascript:')) return;
		all.push([el, 'link']);
	});

	// viewport first so truncation keeps what the agent can act on
	const inView = (el) => { const r = el.getBoundingClientRect(); return r.bottom >= 0 && r.top <= vh; };
	all.sort((a, b) => (inView(b[0]) ? 1 : 0) - (inView(a[0]) ? 1 : 0));
	all.forEach(([el, type]) => push(el, type));
	return elements;
}`
