package dom

// jsHelpers is spliced into every procedure that needs labels, visibility or values
const jsHelpers = `
	const norm = s => (s || '').replace(/\s+/g, ' ').trim();
	const textOf = n => n ? norm(n.innerText || n.textContent) : '';
	const escapeRe = s => s.replace(/[.*+?^${}()|[\]\\]/g, '\\$&');
	const phSet = list => new Set((list || []).map(p => norm(p).toLowerCase()));

	function hiddenByStyle(el) {
		for (let n = el; n && n !== document.body; n = n.parentElement) {
			const s = getComputedStyle(n);
			if (s.display === 'none' || s.visibility === 'hidden' || parseFloat(s.opacity) === 0) return true;
			if (n.getAttribute && n.getAttribute('aria-hidden') === 'true') return true;
		}
		return false;
	}

	function shown(el) {
		const r = el.getBoundingClientRect();
		if (r.width === 0 || r.height === 0) return false;
		return !hiddenByStyle(el);
	}

	function inViewport(el) {
		const r = el.getBoundingClientRect();
		return r.bottom >= 0 && r.top <= window.innerHeight;
	}

	function labelOf(el) {
		if (el.labels && el.labels.length) {
			const t = textOf(el.labels[0]);
			if (t) return t;
		}
		const aria = norm(el.getAttribute('aria-label'));
		if (aria) return aria;
		const by = el.getAttribute('aria-labelledby');
		if (by) {
			const t = norm(by.split(/\s+/).map(id => textOf(document.getElementById(id))).join(' '));
			if (t) return t;
		}
		if (el.id) {
			const l = document.querySelector('label[for="' + CSS.escape(el.id) + '"]');
			const t = textOf(l);
			if (t) return t;
		}
		let n = el.parentElement;
		for (let depth = 0; n && depth < 4; depth++, n = n.parentElement) {
			const lab = n.querySelector('label, legend, [class*="label" i], [data-automation-id*="label" i]');
			if (lab && !lab.contains(el)) {
				const t = textOf(lab);
				if (t && t.length < 200) return t;
			}
			if (n.querySelectorAll('input, select, textarea, [role="combobox"]').length > 3) break;
		}
		for (let s = el.previousElementSibling; s; s = s.previousElementSibling) {
			const t = textOf(s);
			if (t && t.length < 200) return t;
		}
		return norm(el.getAttribute('name') || el.id || el.getAttribute('placeholder') || '');
	}

	function radioLabel(r) {
		if (r.labels && r.labels.length) return textOf(r.labels[0]);
		const aria = norm(r.getAttribute('aria-label'));
		if (aria) return aria;
		const t = textOf(r);
		if (t) return t;
		return textOf(r.parentElement) || norm(r.value);
	}

	function radioGroup(el) {
		if (el.getAttribute('role') === 'radiogroup') return Array.from(el.querySelectorAll('[role="radio"]'));
		if (el.name) return Array.from(document.querySelectorAll('input[type="radio"][name="' + CSS.escape(el.name) + '"]'));
		return [el];
	}

	const isChecked = r => !!r.checked || r.getAttribute('aria-checked') === 'true';

	const dropdownSel = '[role="combobox"], [aria-haspopup="listbox"], [class*="select__control"], [data-automation-id="selectWidget"]';

	function isPlaceholder(t, ph) {
		const x = norm(t).toLowerCase();
		return x === '' || ph.has(x) || (/^(select|choose|please select)\b/.test(x) && x.length < 30);
	}

	function bareLabel(s) {
		return norm(s).toLowerCase().replace(/\s*\*\s*$/, '').replace(/\s*\(?required\)?\s*$/, '');
	}

	function currentValue(el, kind, ph) {
		switch (kind) {
		case 'select': {
			const o = el.selectedIndex >= 0 ? el.options[el.selectedIndex] : null;
			if (!o || o.value === '' || isPlaceholder(o.text, ph)) return '';
			return norm(o.text);
		}
		case 'radio':
		case 'aria_radio': {
			const c = radioGroup(el).find(isChecked);
			return c ? radioLabel(c) : '';
		}
		case 'checkbox':
			return isChecked(el) ? 'checked' : '';
		case 'file':
			return el.files && el.files.length ? el.files[0].name : '';
		case 'upload_button':
			return '';
		case 'custom_dropdown': {
			let t = el.tagName === 'INPUT' ? el.value : '';
			if (!t) {
				const sv = el.querySelector('[class*="singleValue"], [class*="single-value"], [data-automation-id="promptOption"], [data-automation-id="selectedItem"]');
				t = sv ? textOf(sv) : textOf(el);
			}
			t = norm(t);
			if (!t || isPlaceholder(t, ph)) return '';
			const label = bareLabel(labelOf(el));
			if (label && bareLabel(t) === label) return '';
			return t;
		}
		case 'contenteditable':
			return norm(el.innerText);
		default:
			return (el.value || '').trim();
		}
	}
`

// collectJS returns every fillable control visible in the current viewport
const collectJS = `(placeholders) => {` + jsHelpers + `
	const ph = phSet(placeholders);
	const sy = window.scrollY;
	const fields = [];
	const seen = new Set();
	let nextId = window.__applypilotNextId || 1;

	function tag(el) {
		let id = el.getAttribute('data-applypilot-id');
		if (!id) {
			id = String(nextId++);
			el.setAttribute('data-applypilot-id', id);
		}
		return '[data-applypilot-id="' + id + '"]';
	}

	function anchorY(el) {
		for (let n = el; n; n = n.parentElement) {
			const r = n.getBoundingClientRect();
			if (r.height > 0) return r.top + sy;
		}
		return sy;
	}

	function required(el, label) {
		return !!(el.required || el.getAttribute('aria-required') === 'true' || /\*\s*$/.test(label));
	}

	function push(el, kind, extra) {
		const selector = tag(el);
		if (seen.has(selector)) return;
		seen.add(selector);
		const label = (extra && extra.label) || labelOf(el);
		fields.push(Object.assign({
			selector: selector,
			kind: kind,
			label: label,
			value: currentValue(el, kind, ph),
			options: [],
			absY: anchorY(el),
			required: required(el, label)
		}, extra || {}));
	}

	const usable = el => shown(el) && inViewport(el);

	// custom dropdowns first so their inner inputs are claimed
	const claimed = [];
	Array.from(document.querySelectorAll(dropdownSel)).forEach(el => {
		if (el.tagName === 'SELECT' || !usable(el)) return;
		if (el.disabled || el.getAttribute('aria-disabled') === 'true') return;
		if (claimed.some(c => c.contains(el) || el.contains(c))) return;
		claimed.push(el);
		push(el, 'custom_dropdown');
	});
	const isClaimed = el => claimed.some(c => c === el || c.contains(el));

	document.querySelectorAll('input, select, textarea').forEach(el => {
		const type = (el.type || 'text').toLowerCase();
		if (['hidden', 'submit', 'button', 'reset', 'image', 'search'].includes(type)) return;
		if (el.disabled || isClaimed(el)) return;
		if (type === 'file') {
			push(el, 'file', { label: labelOf(el) || 'Resume' });
			return;
		}
		if (!usable(el)) return;
		if (el.readOnly && el.tagName !== 'SELECT') return;

		if (type === 'radio') {
			const group = radioGroup(el);
			const first = group[0];
			if (first !== el && first.getAttribute('data-applypilot-id')) return;
			const fieldset = el.closest('fieldset');
			const legend = fieldset ? textOf(fieldset.querySelector('legend')) : '';
			const groupEl = first.closest('[role="radiogroup"], [role="group"]');
			const groupAria = groupEl ? norm(groupEl.getAttribute('aria-label')) : '';
			const groupLabel = legend || groupAria || labelOf(first.closest('[role="group"], .field, .form-group, div') || first);
			push(first, 'radio', {
				label: groupLabel,
				options: group.map(radioLabel),
				required: group.some(r => r.required) || /\*\s*$/.test(groupLabel)
			});
			return;
		}
		if (type === 'checkbox') {
			push(el, 'checkbox');
			return;
		}
		if (el.tagName === 'SELECT') {
			push(el, 'select', { options: Array.from(el.options).map(o => norm(o.text)).filter(t => t && !isPlaceholder(t, ph)) });
			return;
		}
		push(el, type === 'date' ? 'date' : 'text');
	});

	document.querySelectorAll('[role="radiogroup"]').forEach(g => {
		if (!usable(g) || isClaimed(g)) return;
		const radios = Array.from(g.querySelectorAll('[role="radio"]'));
		if (!radios.length) return;
		push(g, 'aria_radio', { options: radios.map(radioLabel) });
	});

	document.querySelectorAll('[contenteditable="true"]').forEach(el => {
		if (!usable(el) || isClaimed(el)) return;
		if (el.parentElement && el.parentElement.closest('[contenteditable="true"]')) return;
		push(el, 'contenteditable');
	});

	if (!document.querySelector('input[type="file"]')) {
		document.querySelectorAll('button, [role="button"], a, label').forEach(el => {
			if (!usable(el)) return;
			const t = textOf(el).toLowerCase();
			if (t.length > 40 || !/^(upload|attach|choose file|select file|browse)\b|upload (resume|cv)|attach (resume|cv)/.test(t)) return;
			push(el, 'upload_button', { label: textOf(el) });
		});
	}

	window.__applypilotNextId = nextId;
	return {
		fields: fields,
		scrollY: Math.round(sy),
		scrollHeight: document.documentElement.scrollHeight,
		viewportHeight: window.innerHeight
	};
}`

// signalsJS takes one cheap look at the whole page
const signalsJS = `(placeholders) => {` + jsHelpers + `
	const ph = phSet(placeholders);
	const controls = Array.from(document.querySelectorAll('button, [role="button"], input[type="submit"], input[type="button"], a[href]')).filter(shown);
	const ctext = el => norm(el.innerText || el.value || el.getAttribute('aria-label') || '').toLowerCase();
	const texts = controls.map(ctext).filter(t => t && t.length < 80);

	const isSearch = el => (el.type || '').toLowerCase() === 'search' || !!el.closest('[role="search"]');
	const textLike = ['text', 'email', 'tel', 'number', 'url', 'date', 'password', ''];

	const dropdowns = [];
	Array.from(document.querySelectorAll(dropdownSel)).forEach(el => {
		if (el.tagName === 'SELECT' || !shown(el)) return;
		if (el.disabled || el.getAttribute('aria-disabled') === 'true') return;
		if (dropdowns.some(d => d.contains(el) || el.contains(d))) return;
		dropdowns.push(el);
	});
	const inDropdown = el => dropdowns.some(d => d === el || d.contains(el));

	const editable = Array.from(document.querySelectorAll('input, textarea, select, [contenteditable="true"]')).filter(el => {
		const t = (el.type || '').toLowerCase();
		if (['hidden', 'submit', 'button', 'reset', 'image', 'file', 'checkbox', 'radio'].includes(t)) return false;
		if (el.disabled || el.readOnly || isSearch(el) || inDropdown(el)) return false;
		return shown(el);
	});

	let blockers = 0;
	editable.forEach(el => {
		if (el.tagName === 'SELECT') {
			if (currentValue(el, 'select', ph) === '') blockers++;
			return;
		}
		if (el.tagName === 'TEXTAREA' || el.isContentEditable || textLike.includes((el.type || '').toLowerCase())) blockers++;
	});
	dropdowns.forEach(el => {
		if (currentValue(el, 'custom_dropdown', ph) === '') blockers++;
	});
	document.querySelectorAll('input[type="checkbox"], [role="checkbox"]').forEach(el => {
		const req = el.required || el.getAttribute('aria-required') === 'true';
		if (req && !isChecked(el) && shown(el)) blockers++;
	});

	const passwords = Array.from(document.querySelectorAll('input[type="password"]')).filter(shown);
	const headings = Array.from(document.querySelectorAll('h1, h2, [role="heading"]')).filter(shown).map(textOf).filter(Boolean).slice(0, 5);
	const body = document.body ? document.body.innerText || '' : '';
	const lowerHeads = headings.join(' ').toLowerCase();

	let step = '';
	const stepEl = Array.from(document.querySelectorAll('[aria-current="step"], [data-automation-id="progressBarActiveStep"], .active-step, [class*="step" i][class*="active" i], [class*="step" i][class*="current" i]')).find(shown);
	if (stepEl) step = textOf(stepEl).slice(0, 80);

	const codeInput = Array.from(document.querySelectorAll('input')).filter(shown).some(el => {
		if (el.autocomplete === 'one-time-code') return true;
		const s = ((el.name || '') + ' ' + (el.id || '') + ' ' + labelOf(el)).toLowerCase();
		return /\b(otp|one.time|verification code|security code|passcode)\b/.test(s) || (/\bcode\b/.test(s) && !/zip|postal|country|area|promo/.test(s));
	});

	// invisible reCAPTCHA scores in the background; only a challenge the applicant sees counts
	const captcha = Array.from(document.querySelectorAll('iframe[src*="recaptcha"], iframe[src*="hcaptcha"], iframe[src*="challenges.cloudflare"], .g-recaptcha, .h-captcha, #captcha, [data-sitekey]')).some(el => {
		if (el.closest('.grecaptcha-badge')) return false;
		if ((el.getAttribute('data-size') || '').toLowerCase() === 'invisible') return false;
		if (/[?&]size=invisible\b/i.test(el.getAttribute('src') || '')) return false;
		return shown(el);
	});

	const interactive = document.querySelectorAll('input:not([type="hidden"]), select, textarea, button, [role="button"], a[href]');
	let interactiveCount = 0;
	interactive.forEach(el => { if (shown(el)) interactiveCount++; });

	return {
		title: document.title,
		headings: headings,
		passwordFields: passwords.length,
		liveEditable: editable.length + dropdowns.length,
		reviewBlockers: blockers,
		confirmationText: /thank you for (applying|your application|your interest)|application (has been |was )?(submitted|received)|we('ve| have) received your application/i.test(body),
		captcha: captcha,
		applyButton: texts.some(t => /^(apply|apply now|apply for this (job|position|role)|easy apply|start (your )?application|i'?m interested)\b/.test(t)),
		submitButton: texts.some(t => /^submit\b/.test(t)),
		nextButton: texts.some(t => /^(next|continue|save and continue|save & continue)\b/.test(t)),
		ssoButton: texts.some(t => /(continue|sign in|log in|sign up) with (google|microsoft|apple|linkedin|indeed)/.test(t)),
		signInText: /\b(sign in|log in|login)\b/.test(lowerHeads) || texts.some(t => /^(sign in|log in)$/.test(t)),
		createAccountText: /\b(create (an |your )?account|sign up|register)\b/.test(lowerHeads) || texts.some(t => /^(create account|sign up|register)$/.test(t)),
		codeInput: codeInput,
		accountChooser: location.hostname === 'accounts.google.com' && /choose an account|use another account/i.test(body),
		stepIndicator: step,
		interactiveCount: interactiveCount,
		textLength: body.length,
		scrollY: Math.round(window.scrollY),
		scrollHeight: document.documentElement.scrollHeight,
		viewportHeight: window.innerHeight
	};
}`

const setValueJS = `(sel, value) => {
	const el = document.querySelector(sel);
	if (!el) return { ok: false, reason: 'not found' };
	if (el.isContentEditable && el.tagName !== 'INPUT' && el.tagName !== 'TEXTAREA') {
		if ((el.innerText || '').trim() !== '') return { ok: false, reason: 'already filled' };
		el.focus();
		el.innerText = value;
		el.dispatchEvent(new InputEvent('input', { bubbles: true }));
		el.blur();
		return { ok: true };
	}
	if ((el.value || '').trim() !== '') return { ok: false, reason: 'already filled' };
	el.focus();
	const proto = el.tagName === 'TEXTAREA' ? HTMLTextAreaElement.prototype : HTMLInputElement.prototype;
	const setter = Object.getOwnPropertyDescriptor(proto, 'value').set;
	setter.call(el, value);
	el.dispatchEvent(new Event('input', { bubbles: true }));
	el.dispatchEvent(new Event('change', { bubbles: true }));
	el.blur();
	return { ok: (el.value || '').trim() !== '', reason: 'value rejected' };
}`

const selectOptionJS = `(sel, text, placeholders) => {` + jsHelpers + `
	const el = document.querySelector(sel);
	if (!el) return { ok: false, reason: 'not found' };
	if (currentValue(el, 'select', phSet(placeholders)) !== '') return { ok: false, reason: 'already selected' };
	const want = norm(text).toLowerCase();
	const opt = Array.from(el.options).find(o => norm(o.text).toLowerCase() === want);
	if (!opt) return { ok: false, reason: 'option not found' };
	el.value = opt.value;
	opt.selected = true;
	el.dispatchEvent(new Event('input', { bubbles: true }));
	el.dispatchEvent(new Event('change', { bubbles: true }));
	return { ok: el.value === opt.value, reason: 'selection rejected' };
}`

const clickOptionJS = `(sel, text) => {` + jsHelpers + `
	const el = document.querySelector(sel);
	if (!el) return { ok: false, reason: 'not found' };
	const radios = radioGroup(el);
	if (radios.some(isChecked)) return { ok: false, reason: 'already answered' };
	const want = norm(text).toLowerCase();
	const target = radios.find(r => radioLabel(r).toLowerCase() === want);
	if (!target) return { ok: false, reason: 'option not found' };
	target.scrollIntoView({ block: 'center' });
	target.click();
	return { ok: isChecked(target), reason: 'click had no effect' };
}`

const setCheckedJS = `(sel, checked) => {` + jsHelpers + `
	const el = document.querySelector(sel);
	if (!el) return { ok: false, reason: 'not found' };
	if (isChecked(el) === checked) return { ok: false, reason: 'unchanged' };
	el.click();
	return { ok: isChecked(el) === checked, reason: 'click had no effect' };
}`

const openDropdownJS = `(sel) => {
	const el = document.querySelector(sel);
	if (!el) return false;
	el.scrollIntoView({ block: 'center' });
	el.dispatchEvent(new MouseEvent('mousedown', { bubbles: true }));
	el.click();
	return true;
}`

const listOptionsJS = `() => {` + jsHelpers + `
	const opts = Array.from(document.querySelectorAll('[role="option"], [role="listbox"] li, [data-automation-id="promptOption"], [class*="option" i][id*="option" i]')).filter(shown);
	return Array.from(new Set(opts.map(textOf).filter(Boolean))).slice(0, 100);
}`

const pickOptionJS = `(text) => {` + jsHelpers + `
	const want = norm(text).toLowerCase();
	const opts = Array.from(document.querySelectorAll('[role="option"], [role="listbox"] li, [data-automation-id="promptOption"], [class*="option" i][id*="option" i]')).filter(shown);
	const hit = opts.find(o => textOf(o).toLowerCase() === want);
	if (!hit) return false;
	hit.scrollIntoView({ block: 'nearest' });
	hit.dispatchEvent(new MouseEvent('mousedown', { bubbles: true }));
	hit.click();
	return true;
}`

const closeDropdownJS = `() => {
	const target = document.activeElement || document.body;
	target.dispatchEvent(new KeyboardEvent('keydown', { key: 'Escape', bubbles: true }));
	return true;
}`

const readValueJS = `(sel, kind, placeholders) => {` + jsHelpers + `
	const el = document.querySelector(sel);
	if (!el) return '';
	return currentValue(el, kind, phSet(placeholders));
}`

const checkboxStatesJS = `(sels) => {` + jsHelpers + `
	const out = {};
	sels.forEach(s => {
		const el = document.querySelector(s);
		if (el) out[s] = isChecked(el);
	});
	return out;
}`

const clickProceedJS = `(labels, finalLabels, refuseSubmit) => {` + jsHelpers + `
	const cands = Array.from(document.querySelectorAll('button, [role="button"], input[type="submit"], input[type="button"], a[href], a[role="button"]'))
		.filter(el => !el.disabled && el.getAttribute('aria-disabled') !== 'true' && shown(el) && inViewport(el))
		.map(el => ({ el: el, text: norm(el.innerText || el.value || el.getAttribute('aria-label') || '').toLowerCase() }))
		.filter(c => c.text && c.text.length < 60);
	const finals = finalLabels.map(f => norm(f).toLowerCase());
	const isFinal = t => finals.some(f => t === f || new RegExp('^' + escapeRe(f) + '\\b').test(t));

	for (const raw of labels) {
		const label = norm(raw).toLowerCase();
		const re = new RegExp('^' + escapeRe(label) + '\\b');
		const hit = cands.find(c => c.text === label) || cands.find(c => re.test(c.text));
		if (!hit) continue;
		const submitLike = /^submit\b/.test(hit.text);
		if (isFinal(hit.text) || (submitLike && refuseSubmit)) {
			return { found: true, clicked: false, terminal: true, label: hit.text };
		}
		hit.el.click();
		return { found: true, clicked: true, terminal: false, label: hit.text };
	}
	const fin = cands.find(c => isFinal(c.text));
	if (fin) return { found: true, clicked: false, terminal: true, label: fin.text };
	return { found: false, clicked: false, terminal: false, label: '' };
}`

const clickByTextJS = `(patterns) => {` + jsHelpers + `
	const cands = Array.from(document.querySelectorAll('button, [role="button"], [role="link"], a, input[type="submit"], input[type="button"]'))
		.filter(el => !el.disabled && shown(el))
		.map(el => ({ el: el, text: norm(el.innerText || el.value || el.getAttribute('aria-label') || '') }))
		.filter(c => c.text && c.text.length < 80);
	for (const p of patterns) {
		const re = new RegExp(p, 'i');
		const hit = cands.find(c => re.test(c.text));
		if (hit) {
			hit.el.scrollIntoView({ block: 'center' });
			hit.el.click();
			return hit.text;
		}
	}
	return '';
}`

const validationErrorJS = `(selectors) => {` + jsHelpers + `
	for (const sel of selectors) {
		let nodes;
		try { nodes = document.querySelectorAll(sel); } catch (e) { continue; }
		for (const n of nodes) {
			if (!shown(n)) continue;
			const t = textOf(n);
			if (t && t.length < 300) return t;
		}
	}
	const invalid = Array.from(document.querySelectorAll('[aria-invalid="true"]')).filter(shown).length;
	if (invalid > 0) return invalid + ' field(s) marked invalid';
	return '';
}`

const scrollToJS = `(y) => { window.scrollTo(0, y); return Math.round(window.scrollY); }`

const scrollIntoViewJS = `(sel) => {
	const el = document.querySelector(sel);
	if (!el) return false;
	el.scrollIntoView({ block: 'center' });
	return true;
}`

const scrollToContentEndJS = `() => {` + jsHelpers + `
	const els = Array.from(document.querySelectorAll('input:not([type="hidden"]), select, textarea, button, [role="button"]')).filter(shown);
	const sy = window.scrollY;
	let end = 0;
	els.forEach(el => { end = Math.max(end, el.getBoundingClientRect().bottom + sy); });
	const target = Math.max(0, end - window.innerHeight * 0.8);
	window.scrollTo(0, target);
	return Math.round(window.scrollY);
}`

const boxesJS = `(selectors) => {
	const rects = {};
	for (const sel of selectors) {
		let el;
		try { el = document.querySelector(sel); } catch (e) { continue; }
		if (!el) continue;
		const r = el.getBoundingClientRect();
		if (r.width === 0 || r.height === 0 || r.bottom < 0 || r.top > window.innerHeight) continue;
		rects[sel] = { x: r.left, y: r.top, w: r.width, h: r.height };
	}
	return { width: window.innerWidth, rects: rects };
}`

const htmlJS = `() => document.documentElement ? document.documentElement.outerHTML : ''`
